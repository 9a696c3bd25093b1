package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-ops/internal/auth"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
	"wedding-ops/internal/testutil"
	"wedding-ops/internal/whatsapp"
)

type sentMessage struct {
	phone string
	text  string
}

type fakeMessenger struct {
	mu          sync.Mutex
	texts       []sentMessage
	invitations []whatsapp.Invitation
	err         error
}

func (f *fakeMessenger) SendText(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentMessage{phone: phone, text: text})
	return f.err
}

func (f *fakeMessenger) SendInvitation(_ context.Context, _ string, inv whatsapp.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.invitations = append(f.invitations, inv)
	return nil
}

func newHandler(t *testing.T, messenger Messenger) (*RSVPHandler, *storage.Records) {
	t.Helper()
	records, _ := testutil.NewRecords(t)
	clock := testutil.NewClock(testutil.ReferenceTime())
	m := materialize.NewMaterializer(records, testutil.NewIDGenerator("g").Next, clock.Now, zerolog.Nop())
	cfg := Config{BrideName: "Dana", GroomName: "Eli", WeddingDate: "June 12", CountryCode: "972"}
	return NewRSVPHandler(records, m, messenger, cfg, testutil.NewIDGenerator("r").Next, clock.Now, zerolog.Nop()), records
}

var respondent = auth.Principal{ID: "u1", Role: auth.RoleRespondent}

func TestSubmit_YesMaterializesImmediately(t *testing.T) {
	ctx := context.Background()
	h, records := newHandler(t, nil)

	res, err := h.Submit(ctx, respondent, Submission{
		FirstName: "Ann", LastName: "Lee", Side: models.SideBride, IsComing: models.DispositionYes,
		AccompanyingGuests: []models.Companion{{Name: "Bo", RelationToMain: "partner"}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Materialization)
	assert.Equal(t, 2, res.Materialization.Created)
	assert.Equal(t, 1, res.RSVP.AccompanyingGuestsCount)
	assert.NotEmpty(t, res.RSVP.GuestID)

	guests, err := records.GuestsByRSVPUID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, guests, 2)
}

func TestSubmit_OneRSVPPerSubmitter(t *testing.T) {
	ctx := context.Background()
	h, records := newHandler(t, nil)

	first, err := h.Submit(ctx, respondent, Submission{FirstName: "Ann"})
	require.NoError(t, err)
	assert.Nil(t, first.Materialization)

	second, err := h.Submit(ctx, respondent, Submission{FirstName: "Ann", LastName: "Lee", IsComing: models.DispositionNo})
	require.NoError(t, err)
	assert.Equal(t, first.RSVP.ID, second.RSVP.ID)
	assert.True(t, second.RSVP.CreatedAt.Equal(first.RSVP.CreatedAt))

	rsvps, err := records.RSVPs(ctx)
	require.NoError(t, err)
	require.Len(t, rsvps, 1)
	assert.Equal(t, models.DispositionNo, rsvps[0].IsComing)
}

func TestSubmit_CompanionsFrozenAfterImport(t *testing.T) {
	ctx := context.Background()
	h, records := newHandler(t, nil)

	_, err := h.Submit(ctx, respondent, Submission{
		FirstName: "Ann", IsComing: models.DispositionYes,
		AccompanyingGuests: []models.Companion{{Name: "Bo"}},
	})
	require.NoError(t, err)

	res, err := h.Submit(ctx, respondent, Submission{
		FirstName: "Ann", IsComing: models.DispositionYes, Note: "vegan",
		AccompanyingGuests: []models.Companion{{Name: "Bo"}, {Name: "Cy"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "companion changes")
	assert.True(t, res.Materialization.AlreadyImported)

	stored, err := h.Mine(ctx, respondent)
	require.NoError(t, err)
	assert.Len(t, stored.AccompanyingGuests, 1)
	assert.Equal(t, "vegan", stored.Note)

	guests, err := records.Guests(ctx)
	require.NoError(t, err)
	assert.Len(t, guests, 2)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t, nil)

	_, err := h.Submit(ctx, auth.Principal{}, Submission{FirstName: "Ann"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = h.Submit(ctx, respondent, Submission{Side: "aunt", IsComing: "maybe"})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.FieldErrors, 3)

	_, err = h.Mine(ctx, respondent)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
		want Reply
	}{
		{name: "plain yes", text: "Yes!", ok: true, want: Reply{Disposition: models.DispositionYes}},
		{name: "emoji yes", text: "✅", ok: true, want: Reply{Disposition: models.DispositionYes}},
		{name: "plain no", text: "no, sorry", ok: true, want: Reply{Disposition: models.DispositionNo}},
		{name: "negative phrase beats coming", text: "We are not coming", ok: true, want: Reply{Disposition: models.DispositionNo}},
		{name: "know is not no", text: "I know the venue", ok: false},
		{name: "yes with a later no", text: "yes, but no kids", ok: true, want: Reply{Disposition: models.DispositionYes}},
		{name: "no with a later yes", text: "no, yes I know it's short notice", ok: true, want: Reply{Disposition: models.DispositionNo}},
		{name: "yes with companions", text: "YES: Bo (partner), Cy Lee ,", ok: true, want: Reply{
			Disposition: models.DispositionYes,
			Companions: []models.Companion{
				{Name: "Bo", RelationToMain: "partner"},
				{Name: "Cy Lee"},
			},
		}},
		{name: "unrelated", text: "what time does it start?", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReply(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestInviteAndReply(t *testing.T) {
	ctx := context.Background()
	messenger := &fakeMessenger{}
	h, records := newHandler(t, messenger)

	inv, err := h.Invite(ctx, "050-123-4567", "  Ann   Lee ")
	require.NoError(t, err)
	assert.True(t, inv.Sent)
	assert.Equal(t, "wa:972501234567", inv.RSVP.SubmitterID)
	assert.Equal(t, "Ann", inv.RSVP.FirstName)
	assert.Equal(t, "Lee", inv.RSVP.LastName)
	require.Len(t, messenger.invitations, 1)
	assert.Equal(t, "Ann Lee", messenger.invitations[0].Name)

	again, err := h.Invite(ctx, "+972 50 123 4567", "Ann Lee")
	require.NoError(t, err)
	assert.Equal(t, inv.RSVP.ID, again.RSVP.ID)

	require.NoError(t, h.HandleReply(ctx, "972501234567", "yes: Bo (partner)"))

	rsvp, err := records.RSVP(ctx, inv.RSVP.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DispositionYes, rsvp.IsComing)
	assert.NotEmpty(t, rsvp.GuestID)
	guests, err := records.GuestsByRSVPUID(ctx, rsvp.SubmitterID)
	require.NoError(t, err)
	assert.Len(t, guests, 2)

	require.Len(t, messenger.texts, 1)
	assert.Contains(t, messenger.texts[0].text, "Wonderful")
	assert.Contains(t, messenger.texts[0].text, "Party size: 2")
}

func TestHandleReply_Ignores(t *testing.T) {
	ctx := context.Background()
	messenger := &fakeMessenger{}
	h, records := newHandler(t, messenger)

	require.NoError(t, h.HandleReply(ctx, "972500000000", "yes"))
	_, err := h.Invite(ctx, "0501234567", "Ann")
	require.NoError(t, err)
	require.NoError(t, h.HandleReply(ctx, "972501234567", "what should I wear?"))

	assert.Empty(t, messenger.texts)
	rsvps, err := records.RSVPs(ctx)
	require.NoError(t, err)
	require.Len(t, rsvps, 1)
	assert.Equal(t, models.DispositionPending, rsvps[0].IsComing)
}

func TestHandleReply_DeclineSendsRegrets(t *testing.T) {
	ctx := context.Background()
	messenger := &fakeMessenger{}
	h, records := newHandler(t, messenger)
	_, err := h.Invite(ctx, "0501234567", "Ann")
	require.NoError(t, err)

	require.NoError(t, h.HandleReply(ctx, "972501234567", "Sorry, can't make it"))
	require.Len(t, messenger.texts, 1)
	assert.Contains(t, messenger.texts[0].text, "sorry you won't be able")

	guests, err := records.Guests(ctx)
	require.NoError(t, err)
	assert.Empty(t, guests)
}

func TestInvite_SendFailure(t *testing.T) {
	h, _ := newHandler(t, &fakeMessenger{err: errors.New("offline")})
	res, err := h.Invite(context.Background(), "0501234567", "Ann")
	require.Error(t, err)
	assert.False(t, res.Sent)
	assert.NotEmpty(t, res.RSVP.ID)
}
