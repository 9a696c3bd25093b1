package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
	"wedding-ops/internal/testutil"
)

type fixture struct {
	records *storage.Records
	clock   *testutil.Clock
	svc     *Service
}

// seed stores RSVP r1 (u1) with owner Ann and companions Bo and Cy in group grp.
func seed(t *testing.T, store storage.Store, bo models.Disposition) fixture {
	t.Helper()
	ctx := context.Background()
	records := storage.NewRecords(store)
	require.NoError(t, records.PutRSVP(ctx, models.RSVPRecord{
		ID: "r1", SubmitterID: "u1", FirstName: "Ann", LastName: "Lee",
		IsComing: models.DispositionYes, GuestID: "ann",
		AccompanyingGuests: []models.Companion{{Name: "Bo"}, {Name: "Cy"}},
	}))
	for _, g := range []models.GuestRecord{
		{ID: "ann", FirstName: "Ann", LastName: "Lee", IsComing: models.DispositionYes},
		{ID: "bo", FirstName: "Bo", IsComing: bo},
		{ID: "cy", FirstName: "Cy"},
	} {
		g.GroupID = "grp"
		g.RSVPUID = "u1"
		require.NoError(t, records.PutGuest(ctx, g))
	}
	clock := testutil.NewClock(testutil.ReferenceTime())
	return fixture{records: records, clock: clock, svc: NewService(records, clock.Now, zerolog.Nop())}
}

func memoryStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewFileStore("")
	require.NoError(t, err)
	return s
}

func (f fixture) checkedIn(t *testing.T, ids ...string) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	for _, id := range ids {
		g, err := f.records.Guest(context.Background(), id)
		require.NoError(t, err)
		out[id] = g.CheckedIn()
	}
	return out
}

func TestCheckIn_CascadeSkipsDeclined(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionNo)

	res, err := f.svc.CheckIn(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cascaded)
	assert.Zero(t, res.CascadeFailed)
	require.NotNil(t, res.CheckedInAt)

	assert.Equal(t, map[string]bool{"ann": true, "bo": false, "cy": true}, f.checkedIn(t, "ann", "bo", "cy"))

	ann, err := f.records.Guest(ctx, "ann")
	require.NoError(t, err)
	cy, err := f.records.Guest(ctx, "cy")
	require.NoError(t, err)
	assert.True(t, ann.CheckedInAt.Equal(*cy.CheckedInAt), "cascade shares one timestamp")
	assert.Equal(t, models.CheckInManual, cy.CheckInMethod)
}

func TestCheckIn_DeclinedGuestRejected(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionNo)

	_, err := f.svc.CheckIn(ctx, "bo")
	require.ErrorIs(t, err, models.ErrDeclined)
	assert.Equal(t, map[string]bool{"ann": false, "bo": false, "cy": false}, f.checkedIn(t, "ann", "bo", "cy"))
}

func TestCheckIn_DeclinedRSVPRejected(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)
	require.NoError(t, f.records.Store().Update(ctx, storage.RSVPs, "r1", map[string]any{"isComing": "no"}))

	for _, id := range []string{"ann", "cy"} {
		_, err := f.svc.CheckIn(ctx, id)
		assert.ErrorIs(t, err, models.ErrDeclined, id)
	}
	assert.Equal(t, map[string]bool{"ann": false, "cy": false}, f.checkedIn(t, "ann", "cy"))
}

func TestCheckIn_AlreadyCheckedInShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)
	require.NoError(t, f.records.SetCheckIn(ctx, "ann", f.clock.Now(), models.CheckInManual))

	f.clock.Advance(time.Minute)
	res, err := f.svc.CheckIn(ctx, "ann")
	require.NoError(t, err)
	assert.True(t, res.NoChange)
	assert.Zero(t, res.Cascaded)
	assert.False(t, f.checkedIn(t, "bo")["bo"])
}

func TestCheckIn_CascadeFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(memoryStore(t), func(c storage.Collection, key string, fields map[string]any) bool {
		_, checkIn := fields["checkedInAt"]
		return c == storage.Guests && key == "bo" && checkIn
	})
	f := seed(t, faulty, models.DispositionPending)

	res, err := f.svc.CheckIn(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cascaded)
	assert.Equal(t, 1, res.CascadeFailed)
	assert.Equal(t, map[string]bool{"ann": true, "bo": false, "cy": true}, f.checkedIn(t, "ann", "bo", "cy"))
}

func TestCheckIn_UnknownGuest(t *testing.T) {
	f := seed(t, memoryStore(t), models.DispositionPending)
	_, err := f.svc.CheckIn(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUncheck_DoesNotCascade(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)
	_, err := f.svc.CheckIn(ctx, "ann")
	require.NoError(t, err)

	res, err := f.svc.Uncheck(ctx, "ann")
	require.NoError(t, err)
	assert.False(t, res.NoChange)
	assert.Equal(t, map[string]bool{"ann": false, "bo": true, "cy": true}, f.checkedIn(t, "ann", "bo", "cy"))

	ann, err := f.records.Guest(ctx, "ann")
	require.NoError(t, err)
	assert.Empty(t, ann.CheckInMethod)

	res, err = f.svc.Uncheck(ctx, "ann")
	require.NoError(t, err)
	assert.True(t, res.NoChange)
}

func TestToggleGroup_Symmetry(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)
	require.NoError(t, f.records.SetCheckIn(ctx, "bo", f.clock.Now(), models.CheckInManual))

	first, err := f.svc.ToggleGroup(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckIn, first.Action)
	assert.Equal(t, 2, first.Success)
	assert.Equal(t, 1, first.Skipped)
	assert.Equal(t, map[string]bool{"ann": true, "bo": true, "cy": true}, f.checkedIn(t, "ann", "bo", "cy"))

	second, err := f.svc.ToggleGroup(ctx, "grp")
	require.NoError(t, err)
	assert.Equal(t, ActionUncheck, second.Action)
	assert.Equal(t, 3, second.Success)
	assert.Equal(t, map[string]bool{"ann": false, "bo": false, "cy": false}, f.checkedIn(t, "ann", "bo", "cy"))

	// check-all then uncheck-all from an empty group restores it
	_, err = f.svc.ToggleGroup(ctx, "u1")
	require.NoError(t, err)
	_, err = f.svc.ToggleGroup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ann": false, "bo": false, "cy": false}, f.checkedIn(t, "ann", "bo", "cy"))
}

func TestToggleGroup_DeclinedMemberNeverCheckedIn(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionNo)

	res, err := f.svc.ToggleGroup(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckIn, res.Action)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, f.checkedIn(t, "bo")["bo"])

	// Not fully in, so the next toggle checks in again rather than clearing.
	res, err = f.svc.ToggleGroup(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckIn, res.Action)
	assert.Zero(t, res.Success)

	cleared, err := f.svc.UncheckGroup(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, cleared.Success)
}

func TestGroupActions_FailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(memoryStore(t), func(c storage.Collection, key string, fields map[string]any) bool {
		_, checkIn := fields["checkedInAt"]
		return c == storage.Guests && key == "ann" && checkIn
	})
	f := seed(t, faulty, models.DispositionPending)

	res, err := f.svc.CheckInGroup(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Errors, "ann")

	_, err = f.svc.CheckInGroup(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeclined(t *testing.T) {
	guest := models.GuestRecord{ID: "g1", RSVPUID: "u1"}
	assert.False(t, Declined(guest, nil))
	assert.True(t, Declined(models.GuestRecord{IsComing: models.DispositionNo}, nil))
	assert.True(t, Declined(guest, []models.RSVPRecord{{SubmitterID: "u1", IsComing: models.DispositionNo}}))
	assert.True(t, Declined(models.GuestRecord{ID: "g2"}, []models.RSVPRecord{{GuestID: "g2", IsComing: models.DispositionNo}}))
	assert.False(t, Declined(guest, []models.RSVPRecord{{SubmitterID: "u2", IsComing: models.DispositionNo}}))
}

func TestSetDisposition_DeclinedMemberSkippedByCascade(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)

	bo, err := f.svc.SetDisposition(ctx, "bo", models.DispositionNo)
	require.NoError(t, err)
	assert.Equal(t, models.DispositionNo, bo.IsComing)

	res, err := f.svc.CheckIn(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cascaded)
	assert.Equal(t, map[string]bool{"ann": true, "bo": false, "cy": true}, f.checkedIn(t, "ann", "bo", "cy"))

	_, err = f.svc.CheckIn(ctx, "bo")
	assert.ErrorIs(t, err, models.ErrDeclined)

	bo, err = f.svc.SetDisposition(ctx, "bo", models.DispositionPending)
	require.NoError(t, err)
	assert.Equal(t, models.DispositionPending, bo.IsComing)
	_, err = f.svc.CheckIn(ctx, "bo")
	require.NoError(t, err)
	assert.True(t, f.checkedIn(t, "bo")["bo"])
}

func TestSetDisposition_DeclineRevertsCheckIn(t *testing.T) {
	ctx := context.Background()
	f := seed(t, memoryStore(t), models.DispositionPending)
	_, err := f.svc.CheckIn(ctx, "cy")
	require.NoError(t, err)

	cy, err := f.svc.SetDisposition(ctx, "cy", models.DispositionNo)
	require.NoError(t, err)
	assert.False(t, cy.CheckedIn())
	assert.True(t, f.checkedIn(t, "ann")["ann"])

	_, err = f.svc.SetDisposition(ctx, "cy", models.Disposition("maybe"))
	var vErr *models.ValidationError
	assert.ErrorAs(t, err, &vErr)
	_, err = f.svc.SetDisposition(ctx, "missing", models.DispositionYes)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
