// Package checkin records guest arrivals, one at a time or for a whole group.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wedding-ops/internal/groups"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
)

// Group actions
const (
	ActionCheckIn = "check_in"
	ActionUncheck = "uncheck"
)

// CheckInResult is the outcome of a single-guest check-in or uncheck
type CheckInResult struct {
	GuestID     string     `json:"guestId"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	// NoChange marks the short-circuit: the guest was already in the requested state.
	NoChange bool `json:"noChange"`
	// Cascaded counts group members checked in along with the guest.
	Cascaded      int `json:"cascaded"`
	CascadeFailed int `json:"cascadeFailed"`
}

// GroupResult tallies a group-wide action
type GroupResult struct {
	GroupID string            `json:"groupId"`
	Action  string            `json:"action"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (r *GroupResult) fail(id string, err error) {
	r.Failed++
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = err.Error()
}

// Service performs check-in operations
type Service struct {
	records *storage.Records
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a check-in service
func NewService(records *storage.Records, now func() time.Time, logger zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		records: records,
		now:     now,
		logger:  logger.With().Str("component", "CheckIn").Logger(),
	}
}

// Declined reports whether guest must not be checked in: either the guest's
// own answer or any RSVP linked to it says no.
func Declined(guest models.GuestRecord, rsvps []models.RSVPRecord) bool {
	if guest.IsComing.Declined() {
		return true
	}
	for _, r := range rsvps {
		linked := (guest.RSVPUID != "" && r.SubmitterID == guest.RSVPUID) || r.GuestID == guest.ID
		if linked && r.IsComing.Declined() {
			return true
		}
	}
	return false
}

func (s *Service) linkedRSVPs(ctx context.Context, guest models.GuestRecord) ([]models.RSVPRecord, error) {
	var out []models.RSVPRecord
	if guest.RSVPUID != "" {
		bySubmitter, err := s.records.RSVPsBySubmitter(ctx, guest.RSVPUID)
		if err != nil {
			return nil, err
		}
		out = append(out, bySubmitter...)
	}
	byGuest, err := s.records.RSVPsByGuest(ctx, guest.ID)
	if err != nil {
		return nil, err
	}
	return append(out, byGuest...), nil
}

// SetDisposition overrides one person's own answer without touching the RSVP
// the group shares. A guest marked as declined loses any check-in it had.
func (s *Service) SetDisposition(ctx context.Context, guestID string, d models.Disposition) (models.GuestRecord, error) {
	if !d.Valid() {
		vErr := &models.ValidationError{}
		vErr.Add("isComing", "must be yes, no or pending")
		return models.GuestRecord{}, vErr
	}
	guest, err := s.records.Guest(ctx, guestID)
	if err != nil {
		return guest, fmt.Errorf("set disposition of %s: %w", guestID, err)
	}
	now := s.now().UTC()
	if err := s.records.SetGuestDisposition(ctx, guestID, d, now); err != nil {
		return guest, fmt.Errorf("set disposition of %s: %w", guestID, err)
	}
	if d.Declined() && guest.CheckedIn() {
		if err := s.records.ClearCheckIn(ctx, guestID, now); err != nil {
			return guest, fmt.Errorf("revert check-in of %s: %w", guestID, err)
		}
	}
	s.logger.Info().Str("guest_id", guestID).Str("is_coming", string(d)).Msg("Disposition updated")
	return s.records.Guest(ctx, guestID)
}

// CheckIn marks guestID as arrived now and cascades to the rest of the group.
//
// A declined guest is rejected with ErrDeclined. A guest already checked in is
// left untouched and nothing cascades. Other members sharing the guest's
// groupId and rsvpUid are checked in with the same timestamp unless they
// declined or are already in; their write failures are counted, not returned.
func (s *Service) CheckIn(ctx context.Context, guestID string) (CheckInResult, error) {
	res := CheckInResult{GuestID: guestID}
	log := s.logger.With().Str("guest_id", guestID).Logger()

	guest, err := s.records.Guest(ctx, guestID)
	if err != nil {
		return res, fmt.Errorf("check in %s: %w", guestID, err)
	}
	rsvps, err := s.linkedRSVPs(ctx, guest)
	if err != nil {
		return res, fmt.Errorf("check in %s: load rsvp: %w", guestID, err)
	}
	if Declined(guest, rsvps) {
		log.Info().Msg("Rejected check-in of declined guest")
		return res, fmt.Errorf("check in %s: %w", guestID, models.ErrDeclined)
	}
	if guest.CheckedIn() {
		res.NoChange = true
		res.CheckedInAt = guest.CheckedInAt
		log.Debug().Msg("Guest already checked in")
		return res, nil
	}

	now := s.now().UTC()
	if err := s.records.SetCheckIn(ctx, guestID, now, models.CheckInManual); err != nil {
		return res, fmt.Errorf("check in %s: %w", guestID, err)
	}
	res.CheckedInAt = &now

	members, err := s.groupMates(ctx, guest)
	if err != nil {
		// The guest is in; a failed cascade lookup only loses the companions.
		log.Warn().Err(err).Msg("Failed to load group for cascade")
		return res, nil
	}
	for _, m := range members {
		if m.CheckedIn() || Declined(m, rsvps) {
			continue
		}
		if err := s.records.SetCheckIn(ctx, m.ID, now, models.CheckInManual); err != nil {
			res.CascadeFailed++
			log.Warn().Err(err).Str("member_id", m.ID).Msg("Failed to cascade check-in")
			continue
		}
		res.Cascaded++
	}

	log.Info().Int("cascaded", res.Cascaded).Int("cascade_failed", res.CascadeFailed).Msg("Guest checked in")
	return res, nil
}

// groupMates returns the other guests sharing both groupId and rsvpUid
func (s *Service) groupMates(ctx context.Context, guest models.GuestRecord) ([]models.GuestRecord, error) {
	if guest.GroupID == "" {
		return nil, nil
	}
	all, err := s.records.GuestsByGroup(ctx, guest.GroupID)
	if err != nil {
		return nil, err
	}
	var out []models.GuestRecord
	for _, g := range all {
		if g.ID != guest.ID && g.RSVPUID == guest.RSVPUID {
			out = append(out, g)
		}
	}
	return out, nil
}

// Uncheck clears the arrival of a single guest. It does not cascade.
func (s *Service) Uncheck(ctx context.Context, guestID string) (CheckInResult, error) {
	res := CheckInResult{GuestID: guestID}
	guest, err := s.records.Guest(ctx, guestID)
	if err != nil {
		return res, fmt.Errorf("uncheck %s: %w", guestID, err)
	}
	if !guest.CheckedIn() {
		res.NoChange = true
		return res, nil
	}
	if err := s.records.ClearCheckIn(ctx, guestID, s.now().UTC()); err != nil {
		return res, fmt.Errorf("uncheck %s: %w", guestID, err)
	}
	s.logger.Info().Str("guest_id", guestID).Msg("Guest check-in cleared")
	return res, nil
}

// ToggleGroup checks everyone out when the whole group is already in,
// otherwise checks in every member that has not declined.
func (s *Service) ToggleGroup(ctx context.Context, key string) (GroupResult, error) {
	snap, err := s.load(ctx, key)
	if err != nil {
		return GroupResult{}, err
	}
	if snap.group.FullyCheckedIn() {
		return s.uncheckAll(ctx, snap), nil
	}
	return s.checkInAll(ctx, snap), nil
}

// CheckInGroup checks in every member of the group that has not declined
func (s *Service) CheckInGroup(ctx context.Context, key string) (GroupResult, error) {
	snap, err := s.load(ctx, key)
	if err != nil {
		return GroupResult{}, err
	}
	return s.checkInAll(ctx, snap), nil
}

// UncheckGroup clears the arrival of every checked-in member
func (s *Service) UncheckGroup(ctx context.Context, key string) (GroupResult, error) {
	snap, err := s.load(ctx, key)
	if err != nil {
		return GroupResult{}, err
	}
	return s.uncheckAll(ctx, snap), nil
}

type snapshot struct {
	group  models.GuestGroup
	guests map[string]models.GuestRecord
	rsvps  []models.RSVPRecord
}

// load resolves key (RSVP id, submitter id or group id) to a group view
func (s *Service) load(ctx context.Context, key string) (snapshot, error) {
	rsvps, err := s.records.RSVPs(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("list rsvps: %w", err)
	}
	guests, err := s.records.Guests(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("list guests: %w", err)
	}
	group, ok := groups.Find(key, rsvps, guests)
	if !ok {
		return snapshot{}, fmt.Errorf("group %s: %w", key, models.ErrNotFound)
	}
	byID := make(map[string]models.GuestRecord, len(guests))
	for _, g := range guests {
		byID[g.ID] = g
	}
	return snapshot{group: group, guests: byID, rsvps: rsvps}, nil
}

func (s *Service) checkInAll(ctx context.Context, snap snapshot) GroupResult {
	res := GroupResult{GroupID: snap.group.GroupID, Action: ActionCheckIn}
	now := s.now().UTC()
	for _, m := range snap.group.Members {
		guest := snap.guests[m.ID]
		if m.CheckedInAt != nil || Declined(guest, snap.rsvps) {
			res.Skipped++
			continue
		}
		if err := s.records.SetCheckIn(ctx, m.ID, now, models.CheckInManual); err != nil {
			s.logger.Warn().Err(err).Str("member_id", m.ID).Msg("Failed to check in member")
			res.fail(m.ID, err)
			continue
		}
		res.Success++
	}
	s.logResult(res)
	return res
}

func (s *Service) uncheckAll(ctx context.Context, snap snapshot) GroupResult {
	res := GroupResult{GroupID: snap.group.GroupID, Action: ActionUncheck}
	now := s.now().UTC()
	for _, m := range snap.group.Members {
		if m.CheckedInAt == nil {
			res.Skipped++
			continue
		}
		if err := s.records.ClearCheckIn(ctx, m.ID, now); err != nil {
			s.logger.Warn().Err(err).Str("member_id", m.ID).Msg("Failed to uncheck member")
			res.fail(m.ID, err)
			continue
		}
		res.Success++
	}
	s.logResult(res)
	return res
}

func (s *Service) logResult(res GroupResult) {
	s.logger.Info().
		Str("group_id", res.GroupID).
		Str("action", res.Action).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("Group action finished")
}
