package syncwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
	"wedding-ops/internal/testutil"
)

type stubMaterializer struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	started chan string
	release chan struct{}
}

func (s *stubMaterializer) Materialize(ctx context.Context, rsvp models.RSVPRecord) (materialize.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rsvp.ID)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- rsvp.ID
	}
	if s.release != nil {
		<-s.release
	}
	if s.fail[rsvp.ID] {
		return materialize.Result{}, errors.New("boom")
	}
	return materialize.Result{RSVPID: rsvp.ID}, nil
}

func (s *stubMaterializer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func seedRSVPs(t *testing.T, records *storage.Records) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []models.RSVPRecord{
		{ID: "r1", SubmitterID: "u1", FirstName: "Ann", IsComing: models.DispositionYes},
		{ID: "r2", SubmitterID: "u2", FirstName: "Bo", IsComing: models.DispositionYes},
		{ID: "r3", SubmitterID: "u3", FirstName: "Cy", IsComing: models.DispositionNo},
		{ID: "r4", SubmitterID: "u4", FirstName: "Di"},
		{ID: "r5", SubmitterID: "u5", FirstName: "Ed", IsComing: models.DispositionYes, GuestID: "g5"},
	} {
		require.NoError(t, records.PutRSVP(ctx, r))
	}
}

func TestPending(t *testing.T) {
	rsvps := []models.RSVPRecord{
		{ID: "a", IsComing: models.DispositionYes},
		{ID: "b", IsComing: models.DispositionYes, GuestID: "g"},
		{ID: "c", IsComing: models.DispositionNo},
		{ID: "d"},
	}
	pending := Pending(rsvps)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)
}

func TestSync_MaterializesPendingRSVPs(t *testing.T) {
	ctx := context.Background()
	records, _ := testutil.NewRecords(t)
	seedRSVPs(t, records)
	clock := testutil.NewClock(testutil.ReferenceTime())
	m := materialize.NewMaterializer(records, testutil.NewIDGenerator("id").Next, clock.Now, zerolog.Nop())
	w := New(records, m, Options{}, zerolog.Nop())

	res, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Pending: 2, Materialized: 2}, res)

	guests, err := records.Guests(ctx)
	require.NoError(t, err)
	assert.Len(t, guests, 2)

	again, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Pending)
	assert.Zero(t, w.InFlight().Len())
}

func TestSync_FailureDoesNotStopBatch(t *testing.T) {
	records, _ := testutil.NewRecords(t)
	seedRSVPs(t, records)
	stub := &stubMaterializer{fail: map[string]bool{"r1": true}}
	w := New(records, stub, Options{Concurrency: 1}, zerolog.Nop())

	res, err := w.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Materialized)
	assert.ElementsMatch(t, []string{"r1", "r2"}, stub.Calls())
}

func TestSync_SkipsRSVPsAlreadyInFlight(t *testing.T) {
	records, _ := testutil.NewRecords(t)
	seedRSVPs(t, records)
	stub := &stubMaterializer{}
	w := New(records, stub, Options{}, zerolog.Nop())
	require.True(t, w.InFlight().TryAcquire("r1"))

	res, err := w.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.InFlight)
	assert.Equal(t, []string{"r2"}, stub.Calls())
}

func TestSync_OverlappingPassesDoNotReenter(t *testing.T) {
	ctx := context.Background()
	records, _ := testutil.NewRecords(t)
	require.NoError(t, records.PutRSVP(ctx, models.RSVPRecord{ID: "r1", SubmitterID: "u1", FirstName: "Ann", IsComing: models.DispositionYes}))
	stub := &stubMaterializer{started: make(chan string, 1), release: make(chan struct{})}
	w := New(records, stub, Options{}, zerolog.Nop())

	done := make(chan SyncResult, 1)
	go func() {
		res, _ := w.Sync(ctx)
		done <- res
	}()
	require.Equal(t, "r1", <-stub.started)

	second, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.InFlight)
	assert.Zero(t, second.Materialized)

	close(stub.release)
	first := <-done
	assert.Equal(t, 1, first.Materialized)
	assert.Equal(t, []string{"r1"}, stub.Calls())
	assert.Zero(t, w.InFlight().Len())
}

func TestRun_ReactsToNewRSVPs(t *testing.T) {
	records, _ := testutil.NewRecords(t)
	m := materialize.NewMaterializer(records, nil, nil, zerolog.Nop())
	w := New(records, m, Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()

	require.NoError(t, records.PutRSVP(context.Background(), models.RSVPRecord{
		ID: "r1", SubmitterID: "u1", FirstName: "Ann", LastName: "Lee",
		IsComing:           models.DispositionYes,
		AccompanyingGuests: []models.Companion{{Name: "Bo", RelationToMain: "partner"}},
	}))

	require.Eventually(t, func() bool {
		rsvp, err := records.RSVP(context.Background(), "r1")
		return err == nil && rsvp.GuestID != ""
	}, 2*time.Second, 10*time.Millisecond)

	guests, err := records.Guests(context.Background())
	require.NoError(t, err)
	assert.Len(t, guests, 2)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestInFlight(t *testing.T) {
	s := NewInFlight()
	assert.True(t, s.TryAcquire("a"))
	assert.False(t, s.TryAcquire("a"))
	assert.Equal(t, 1, s.Len())
	s.Release("a")
	assert.True(t, s.TryAcquire("a"))
}
