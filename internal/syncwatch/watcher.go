// Package syncwatch keeps materialized guests in step with incoming RSVPs.
package syncwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
)

// Materializer is the part of materialize.Materializer the watcher needs
type Materializer interface {
	Materialize(ctx context.Context, rsvp models.RSVPRecord) (materialize.Result, error)
}

// SyncResult tallies one pass over the RSVP collection
type SyncResult struct {
	Pending         int `json:"pending"`
	Materialized    int `json:"materialized"`
	AlreadyImported int `json:"alreadyImported"`
	InFlight        int `json:"inFlight"`
	Failed          int `json:"failed"`
}

// Options tune the watcher
type Options struct {
	// Interval between full resyncs. Zero disables the timer; change
	// notifications still trigger a sync.
	Interval time.Duration
	// Concurrency bounds parallel materializations in one pass. Defaults to 4.
	Concurrency int
}

// Watcher materializes every "coming" RSVP that has no guestId yet
type Watcher struct {
	records      *storage.Records
	materializer Materializer
	opts         Options
	inFlight     *InFlight
	trigger      chan struct{}
	logger       zerolog.Logger
}

// New creates a watcher
func New(records *storage.Records, materializer Materializer, opts Options, logger zerolog.Logger) *Watcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Watcher{
		records:      records,
		materializer: materializer,
		opts:         opts,
		inFlight:     NewInFlight(),
		trigger:      make(chan struct{}, 1),
		logger:       logger.With().Str("component", "SyncWatcher").Logger(),
	}
}

// InFlight exposes the reentrancy guard
func (w *Watcher) InFlight() *InFlight {
	return w.inFlight
}

// Pending filters RSVPs answered yes that lack a back-reference
func Pending(rsvps []models.RSVPRecord) []models.RSVPRecord {
	var out []models.RSVPRecord
	for _, r := range rsvps {
		if r.IsComing == models.DispositionYes && r.GuestID == "" {
			out = append(out, r)
		}
	}
	return out
}

// Sync materializes every pending RSVP concurrently. RSVPs already being
// materialized by this process are skipped. A failed RSVP is counted and
// never stops the others.
func (w *Watcher) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	rsvps, err := w.records.RSVPs(ctx)
	if err != nil {
		return res, fmt.Errorf("list rsvps: %w", err)
	}
	pending := Pending(rsvps)
	res.Pending = len(pending)
	if len(pending) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)

	for _, rsvp := range pending {
		if !w.inFlight.TryAcquire(rsvp.ID) {
			res.InFlight++
			continue
		}
		g.Go(func() error {
			defer w.inFlight.Release(rsvp.ID)

			out, err := w.materializer.Materialize(gctx, rsvp)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				w.logger.Warn().Err(err).Str("rsvp_id", rsvp.ID).Msg("Failed to materialize RSVP")
			case out.AlreadyImported:
				res.AlreadyImported++
			default:
				res.Materialized++
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info().
		Int("pending", res.Pending).
		Int("materialized", res.Materialized).
		Int("already_imported", res.AlreadyImported).
		Int("in_flight", res.InFlight).
		Int("failed", res.Failed).
		Msg("Sync finished")
	return res, nil
}

// Run syncs once, then again on every RSVP change notification and on every
// interval tick, until ctx is done. Notifications arriving during a sync are
// coalesced into one follow-up pass.
func (w *Watcher) Run(ctx context.Context) error {
	cancel := w.records.Store().Subscribe(storage.RSVPs, func(storage.ChangeEvent) {
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	})
	defer cancel()

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info().Dur("interval", w.opts.Interval).Msg("Sync watcher started")
	w.syncLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Sync watcher stopped")
			return nil
		case <-w.trigger:
			w.syncLogged(ctx)
		case <-tick:
			w.syncLogged(ctx)
		}
	}
}

func (w *Watcher) syncLogged(ctx context.Context) {
	if _, err := w.Sync(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("Sync failed")
	}
}
