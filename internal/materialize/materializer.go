// Package materialize turns "coming" RSVPs into owner and companion guest records.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-ops/internal/identity"
	"wedding-ops/internal/ids"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
)

// Result describes the outcome of one materialization
type Result struct {
	RSVPID  string `json:"rsvpId"`
	OwnerID string `json:"ownerId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	// AlreadyImported marks the idempotency short-circuit; nothing new was created.
	AlreadyImported   bool     `json:"alreadyImported"`
	Created           int      `json:"created"`
	CompanionFailures int      `json:"companionFailures"`
	Warnings          []string `json:"warnings,omitempty"`
}

// ImportSummary tallies a bulk import over every RSVP
type ImportSummary struct {
	Imported          int               `json:"imported"`
	AlreadyImported   int               `json:"alreadyImported"`
	NotComing         int               `json:"notComing"`
	Failed            int               `json:"failed"`
	CompanionFailures int               `json:"companionFailures"`
	Errors            map[string]string `json:"errors,omitempty"`
}

// Materializer creates guest records from RSVPs exactly once per process and
// converges idempotently across processes.
type Materializer struct {
	records  *storage.Records
	resolver *identity.Resolver
	newID    ids.Generator
	now      func() time.Time
	logger   zerolog.Logger
	locks    keyedMutex
}

// NewMaterializer wires the materializer. A nil generator uses UUIDv7 ids and
// a nil clock uses time.Now.
func NewMaterializer(records *storage.Records, newID ids.Generator, now func() time.Time, logger zerolog.Logger) *Materializer {
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		records:  records,
		resolver: identity.NewResolver(records),
		newID:    ids.OrDefault(newID),
		now:      now,
		logger:   logger.With().Str("component", "Materializer").Logger(),
	}
}

// Validate checks the fields materialization depends on
func Validate(rsvp models.RSVPRecord) error {
	vErr := &models.ValidationError{}
	if strings.TrimSpace(rsvp.ID) == "" {
		vErr.Add("id", "is required")
	}
	if strings.TrimSpace(rsvp.SubmitterID) == "" {
		vErr.Add("submitterId", "is required")
	}
	if strings.TrimSpace(rsvp.FirstName) == "" {
		vErr.Add("firstName", "is required")
	}
	if rsvp.Side != "" && !rsvp.Side.Valid() {
		vErr.Add("side", "must be groom, bride or both")
	}
	if !rsvp.IsComing.Valid() {
		vErr.Add("isComing", "must be yes, no or empty")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// Materialize creates the owner guest and one guest per declared companion,
// then writes the owner id back onto the RSVP.
//
// When the resolver already finds an owner, only a missing back-reference is
// written. Companion write failures are counted and reported in the result;
// they never stop the remaining companions or the back-reference write.
// Concurrent calls for the same RSVP within this process are serialized; calls
// from other processes may still race and are tolerated.
func (m *Materializer) Materialize(ctx context.Context, rsvp models.RSVPRecord) (res Result, err error) {
	res.RSVPID = rsvp.ID
	log := m.logger.With().Str("rsvp_id", rsvp.ID).Logger()

	if err := Validate(rsvp); err != nil {
		return res, err
	}
	if rsvp.IsComing != models.DispositionYes {
		return res, fmt.Errorf("materialize %s: %w", rsvp.ID, models.ErrNotComing)
	}

	unlock := m.locks.lock(rsvp.ID)
	defer unlock()

	defer func() {
		switch {
		case err != nil:
			log.Error().Err(err).Str("error_kind", models.ErrorKind(err)).Msg("Materialization aborted")
		case res.AlreadyImported:
			log.Debug().Str("owner_id", res.OwnerID).Msg("RSVP already imported")
		default:
			log.Info().
				Str("owner_id", res.OwnerID).
				Str("group_id", res.GroupID).
				Int("created", res.Created).
				Int("companion_failures", res.CompanionFailures).
				Msg("RSVP materialized")
		}
	}()

	owner, err := m.resolver.ResolveOwner(ctx, rsvp)
	if err != nil {
		return res, err
	}
	if owner != nil {
		res.AlreadyImported = true
		res.OwnerID = owner.ID
		res.GroupID = owner.GroupID
		if rsvp.GuestID != owner.ID {
			if err := m.records.LinkGuest(ctx, rsvp.ID, owner.ID, m.now().UTC()); err != nil {
				return res, fmt.Errorf("link existing owner: %w", err)
			}
		}
		return res, nil
	}

	now := m.now().UTC()
	groupID := m.newID()
	groupName := rsvp.DisplayName()

	ownerRecord := models.GuestRecord{
		ID:               m.newID(),
		FirstName:        strings.TrimSpace(rsvp.FirstName),
		LastName:         strings.TrimSpace(rsvp.LastName),
		Nickname:         rsvp.Nickname,
		RelationToCouple: rsvp.Relation,
		Side:             rsvp.Side,
		Note:             rsvp.Note,
		IsComing:         models.DispositionYes,
		GroupID:          groupID,
		GroupName:        groupName,
		RSVPUID:          rsvp.SubmitterID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.records.PutGuest(ctx, ownerRecord); err != nil {
		return res, fmt.Errorf("create owner: %w", err)
	}
	res.OwnerID = ownerRecord.ID
	res.GroupID = groupID
	res.Created = 1

	for i, companion := range rsvp.AccompanyingGuests {
		first, last := splitName(companion.Name, i+1)
		record := models.GuestRecord{
			ID:               m.newID(),
			FirstName:        first,
			LastName:         last,
			RelationToCouple: companion.RelationToMain,
			Side:             rsvp.Side,
			GroupID:          groupID,
			GroupName:        groupName,
			RSVPUID:          rsvp.SubmitterID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := m.records.PutGuest(ctx, record); err != nil {
			res.CompanionFailures++
			res.Warnings = append(res.Warnings, fmt.Sprintf("companion %d (%s) not created: %v", i+1, record.FullName(), err))
			log.Warn().Err(err).Int("position", i+1).Msg("Failed to create companion")
			continue
		}
		res.Created++
	}

	if err := m.records.LinkGuest(ctx, rsvp.ID, ownerRecord.ID, now); err != nil {
		return res, fmt.Errorf("write guestId: %w", err)
	}
	return res, nil
}

// MaterializeByID loads the RSVP and materializes it
func (m *Materializer) MaterializeByID(ctx context.Context, rsvpID string) (Result, error) {
	rsvp, err := m.records.RSVP(ctx, rsvpID)
	if err != nil {
		return Result{RSVPID: rsvpID}, fmt.Errorf("load rsvp %s: %w", rsvpID, err)
	}
	return m.Materialize(ctx, rsvp)
}

// MaterializeAll imports every RSVP. One RSVP's failure never stops the rest.
func (m *Materializer) MaterializeAll(ctx context.Context) (ImportSummary, error) {
	var summary ImportSummary

	rsvps, err := m.records.RSVPs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list rsvps: %w", err)
	}

	for _, rsvp := range rsvps {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if rsvp.IsComing != models.DispositionYes {
			summary.NotComing++
			continue
		}
		res, err := m.Materialize(ctx, rsvp)
		summary.CompanionFailures += res.CompanionFailures
		switch {
		case err != nil:
			summary.Failed++
			if summary.Errors == nil {
				summary.Errors = make(map[string]string)
			}
			summary.Errors[rsvp.ID] = err.Error()
		case res.AlreadyImported:
			summary.AlreadyImported++
		default:
			summary.Imported++
		}
	}

	m.logger.Info().
		Int("imported", summary.Imported).
		Int("already_imported", summary.AlreadyImported).
		Int("not_coming", summary.NotComing).
		Int("failed", summary.Failed).
		Msg("Bulk import finished")
	return summary, nil
}

// DeleteGuest removes a guest and clears every RSVP back-reference to it.
func (m *Materializer) DeleteGuest(ctx context.Context, guestID string) error {
	if _, err := m.records.Guest(ctx, guestID); err != nil {
		return fmt.Errorf("delete guest %s: %w", guestID, err)
	}
	if err := m.records.RemoveGuest(ctx, guestID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete guest %s: %w", guestID, err)
	}

	linked, err := m.records.RSVPsByGuest(ctx, guestID)
	if err != nil {
		return fmt.Errorf("find rsvps linked to %s: %w", guestID, err)
	}
	now := m.now().UTC()
	for _, rsvp := range linked {
		if err := m.records.UnlinkGuest(ctx, rsvp.ID, now); err != nil {
			return fmt.Errorf("unlink rsvp %s: %w", rsvp.ID, err)
		}
	}

	m.logger.Info().Str("guest_id", guestID).Int("unlinked_rsvps", len(linked)).Msg("Guest deleted")
	return nil
}

// splitName separates a free-text companion name into first and last name.
// A blank name becomes "person N".
func splitName(name string, position int) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "person " + strconv.Itoa(position), ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
