// Package handler accepts RSVP submissions from respondents, either through
// their own client or as WhatsApp replies to an invitation.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-ops/internal/auth"
	"wedding-ops/internal/identity"
	"wedding-ops/internal/ids"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
	"wedding-ops/internal/whatsapp"
)

// maxCompanions bounds a single submission
const maxCompanions = 20

// WhatsAppSubmitterPrefix marks submitter ids derived from a phone number
const WhatsAppSubmitterPrefix = "wa:"

// Materializer turns a "coming" RSVP into guests
type Materializer interface {
	Materialize(ctx context.Context, rsvp models.RSVPRecord) (materialize.Result, error)
}

// Messenger delivers chat messages to respondents
type Messenger interface {
	SendText(ctx context.Context, phoneNumber, message string) error
	SendInvitation(ctx context.Context, phoneNumber string, inv whatsapp.Invitation) error
}

// Config holds the wedding details quoted in messages
type Config struct {
	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
	CountryCode     string
}

// Submission is what a respondent sends
type Submission struct {
	FirstName          string             `json:"firstName"`
	LastName           string             `json:"lastName"`
	Nickname           string             `json:"nickname,omitempty"`
	Relation           string             `json:"relation,omitempty"`
	Side               models.Side        `json:"side"`
	Note               string             `json:"note,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	IsComing           models.Disposition `json:"isComing"`
	AccompanyingGuests []models.Companion `json:"accompanyingGuests,omitempty"`
}

// SubmitResult is returned to the respondent
type SubmitResult struct {
	RSVP            models.RSVPRecord   `json:"rsvp"`
	Materialization *materialize.Result `json:"materialization,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// InviteResult reports an invitation
type InviteResult struct {
	RSVP models.RSVPRecord `json:"rsvp"`
	Sent bool              `json:"sent"`
}

// RSVPHandler stores submissions and triggers materialization
type RSVPHandler struct {
	records      *storage.Records
	materializer Materializer
	messenger    Messenger
	cfg          Config
	newID        ids.Generator
	now          func() time.Time
	logger       zerolog.Logger
}

// NewRSVPHandler creates a new RSVP handler. messenger may be nil when
// WhatsApp is disabled.
func NewRSVPHandler(records *storage.Records, materializer Materializer, messenger Messenger, cfg Config, newID ids.Generator, now func() time.Time, logger zerolog.Logger) *RSVPHandler {
	if now == nil {
		now = time.Now
	}
	return &RSVPHandler{
		records:      records,
		materializer: materializer,
		messenger:    messenger,
		cfg:          cfg,
		newID:        ids.OrDefault(newID),
		now:          now,
		logger:       logger.With().Str("component", "RSVP").Logger(),
	}
}

func validateSubmission(sub Submission) error {
	vErr := &models.ValidationError{}
	if strings.TrimSpace(sub.FirstName) == "" {
		vErr.Add("firstName", "is required")
	}
	if sub.Side != "" && !sub.Side.Valid() {
		vErr.Add("side", "must be groom, bride or both")
	}
	if !sub.IsComing.Valid() {
		vErr.Add("isComing", "must be yes, no or empty")
	}
	if len(sub.AccompanyingGuests) > maxCompanions {
		vErr.Add("accompanyingGuests", fmt.Sprintf("at most %d companions", maxCompanions))
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// Mine returns the caller's RSVP
func (h *RSVPHandler) Mine(ctx context.Context, principal auth.Principal) (models.RSVPRecord, error) {
	if principal.ID == "" {
		return models.RSVPRecord{}, models.ErrUnauthorized
	}
	existing, err := h.records.RSVPsBySubmitter(ctx, principal.ID)
	if err != nil {
		return models.RSVPRecord{}, err
	}
	if len(existing) == 0 {
		return models.RSVPRecord{}, fmt.Errorf("rsvp for %s: %w", principal.ID, models.ErrNotFound)
	}
	return existing[0], nil
}

// Submit creates or updates the caller's single RSVP and materializes it
// right away when the answer is yes.
//
// Once an RSVP has been materialized its companion list is frozen: a changed
// list is not stored and the result carries a warning instead.
func (h *RSVPHandler) Submit(ctx context.Context, principal auth.Principal, sub Submission) (SubmitResult, error) {
	var res SubmitResult
	if principal.ID == "" {
		return res, models.ErrUnauthorized
	}
	if err := validateSubmission(sub); err != nil {
		return res, err
	}

	now := h.now().UTC()
	rsvp, err := h.Mine(ctx, principal)
	switch {
	case errors.Is(err, models.ErrNotFound):
		rsvp = models.RSVPRecord{ID: h.newID(), SubmitterID: principal.ID, CreatedAt: now}
	case err != nil:
		return res, fmt.Errorf("load rsvp: %w", err)
	}

	companions := sub.AccompanyingGuests
	if rsvp.GuestID != "" && !sameCompanions(rsvp.AccompanyingGuests, companions) {
		companions = rsvp.AccompanyingGuests
		res.Warnings = append(res.Warnings, "companion changes after import are not applied; please contact the couple")
	}

	rsvp.FirstName = strings.TrimSpace(sub.FirstName)
	rsvp.LastName = strings.TrimSpace(sub.LastName)
	rsvp.Nickname = sub.Nickname
	rsvp.Relation = sub.Relation
	rsvp.Side = sub.Side
	rsvp.Note = sub.Note
	if sub.Phone != "" {
		rsvp.Phone = sub.Phone
	}
	rsvp.IsComing = sub.IsComing
	rsvp.AccompanyingGuests = companions
	rsvp.AccompanyingGuestsCount = len(companions)
	rsvp.UpdatedAt = now

	if err := h.records.PutRSVP(ctx, rsvp); err != nil {
		return res, fmt.Errorf("save rsvp: %w", err)
	}
	res.RSVP = rsvp
	h.logger.Info().Str("rsvp_id", rsvp.ID).Str("is_coming", string(rsvp.IsComing)).Msg("RSVP saved")

	if rsvp.IsComing != models.DispositionYes || h.materializer == nil {
		return res, nil
	}
	mat, err := h.materializer.Materialize(ctx, rsvp)
	if err != nil {
		// The RSVP is stored; the sync watcher retries.
		h.logger.Warn().Err(err).Str("rsvp_id", rsvp.ID).Msg("Immediate materialization failed")
		res.Warnings = append(res.Warnings, "your guest list will be updated shortly")
		return res, nil
	}
	res.Materialization = &mat
	if mat.OwnerID != "" {
		res.RSVP.GuestID = mat.OwnerID
	}
	res.Warnings = append(res.Warnings, mat.Warnings...)
	return res, nil
}

func sameCompanions(a, b []models.Companion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if identity.NormalizeName(a[i].Name) != identity.NormalizeName(b[i].Name) ||
			strings.TrimSpace(a[i].RelationToMain) != strings.TrimSpace(b[i].RelationToMain) {
			return false
		}
	}
	return true
}

// WhatsAppSubmitter is the submitter id used for a phone number
func (h *RSVPHandler) WhatsAppSubmitter(phone string) string {
	return WhatsAppSubmitterPrefix + whatsapp.NormalizePhoneNumber(phone, h.cfg.CountryCode)
}

// Invite records a pending RSVP for the phone number and sends the invitation.
// Inviting the same number again reuses its RSVP.
func (h *RSVPHandler) Invite(ctx context.Context, phone, name string) (InviteResult, error) {
	var res InviteResult
	normalized := whatsapp.NormalizePhoneNumber(phone, h.cfg.CountryCode)
	if normalized == "" {
		vErr := &models.ValidationError{}
		vErr.Add("phone", "is required")
		return res, vErr
	}
	first, last, _ := strings.Cut(strings.Join(strings.Fields(name), " "), " ")
	if first == "" {
		vErr := &models.ValidationError{}
		vErr.Add("name", "is required")
		return res, vErr
	}

	principal := auth.Principal{ID: WhatsAppSubmitterPrefix + normalized, Role: auth.RoleRespondent}
	rsvp, err := h.Mine(ctx, principal)
	switch {
	case errors.Is(err, models.ErrNotFound):
		now := h.now().UTC()
		rsvp = models.RSVPRecord{
			ID:          h.newID(),
			SubmitterID: principal.ID,
			FirstName:   first,
			LastName:    last,
			Phone:       normalized,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := h.records.PutRSVP(ctx, rsvp); err != nil {
			return res, fmt.Errorf("failed to add invitee: %w", err)
		}
	case err != nil:
		return res, err
	}
	res.RSVP = rsvp

	if h.messenger == nil {
		return res, nil
	}
	if err := h.messenger.SendInvitation(ctx, normalized, whatsapp.Invitation{
		Name:            rsvp.DisplayName(),
		WeddingDate:     h.cfg.WeddingDate,
		WeddingLocation: h.cfg.WeddingLocation,
		BrideName:       h.cfg.BrideName,
		GroomName:       h.cfg.GroomName,
	}); err != nil {
		return res, fmt.Errorf("failed to send invitation: %w", err)
	}
	res.Sent = true
	h.logger.Info().Str("rsvp_id", rsvp.ID).Str("phone", normalized).Msg("Invitation sent")
	return res, nil
}

// HandleReply processes an incoming WhatsApp message for RSVP responses.
// Messages from numbers that were never invited, and messages that are not
// an answer, are ignored.
func (h *RSVPHandler) HandleReply(ctx context.Context, phone, text string) error {
	principal := auth.Principal{ID: h.WhatsAppSubmitter(phone), Role: auth.RoleRespondent}
	rsvp, err := h.Mine(ctx, principal)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	reply, ok := ParseReply(text)
	if !ok {
		return nil
	}

	sub := Submission{
		FirstName:          rsvp.FirstName,
		LastName:           rsvp.LastName,
		Nickname:           rsvp.Nickname,
		Relation:           rsvp.Relation,
		Side:               rsvp.Side,
		Note:               rsvp.Note,
		Phone:              rsvp.Phone,
		IsComing:           reply.Disposition,
		AccompanyingGuests: rsvp.AccompanyingGuests,
	}
	if reply.Companions != nil {
		sub.AccompanyingGuests = reply.Companions
	}

	res, err := h.Submit(ctx, principal, sub)
	if err != nil {
		return fmt.Errorf("failed to update RSVP: %w", err)
	}
	if h.messenger == nil {
		return nil
	}
	if err := h.messenger.SendText(ctx, phone, h.confirmation(res)); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

func (h *RSVPHandler) confirmation(res SubmitResult) string {
	if res.RSVP.IsComing != models.DispositionYes {
		return fmt.Sprintf(
			"Thank you for letting us know. We're sorry you won't be able to join us for the wedding of %s & %s.\n\n"+
				"We'll miss you! 💕",
			h.cfg.BrideName, h.cfg.GroomName,
		)
	}

	msg := fmt.Sprintf(
		"🎉 Wonderful! We're so excited to celebrate with you!\n\n"+
			"We've confirmed your attendance for the wedding of %s & %s on %s.",
		h.cfg.BrideName, h.cfg.GroomName, h.cfg.WeddingDate,
	)
	if n := res.RSVP.AccompanyingGuestsCount; n > 0 {
		msg += fmt.Sprintf("\nParty size: %d (you + %d).", n+1, n)
	}
	for _, w := range res.Warnings {
		msg += "\n⚠️ " + w
	}
	return msg + "\n\nSee you there! 💕"
}
