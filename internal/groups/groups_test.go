package groups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-ops/internal/models"
	"wedding-ops/internal/testutil"
)

func fixture() (models.RSVPRecord, []models.GuestRecord) {
	at := testutil.ReferenceTime()
	checked := at.Add(time.Hour)
	rsvp := models.RSVPRecord{
		ID:          "r1",
		SubmitterID: "u1",
		FirstName:   "Ann",
		LastName:    "Lee",
		Relation:    "cousin",
		Side:        models.SideBride,
		IsComing:    models.DispositionYes,
		GuestID:     "g-ann",
		AccompanyingGuests: []models.Companion{
			{Name: "Bo", RelationToMain: "partner"},
			{Name: "Cy Lee", RelationToMain: "son"},
		},
	}
	guests := []models.GuestRecord{
		// Stored out of creation order on purpose.
		{ID: "g-cy", FirstName: "Cy", LastName: "Lee", GroupID: "grp", RSVPUID: "u1", CreatedAt: at},
		{ID: "g-bo", FirstName: "Bo", GroupID: "grp", RSVPUID: "u1", CreatedAt: at, CheckedInAt: &checked, ZoneID: "z1", TableID: "t1"},
		{ID: "g-ann", FirstName: "Ann", LastName: "Lee", GroupID: "grp", GroupName: "Ann Lee", RSVPUID: "u1", CreatedAt: at},
		{ID: "g-other", FirstName: "Dan", GroupID: "grp2", RSVPUID: "u2", CreatedAt: at},
	}
	return rsvp, guests
}

func TestGuestsForRSVP(t *testing.T) {
	rsvp, guests := fixture()

	linked := GuestsForRSVP(rsvp, guests)
	require.Len(t, linked, 3)
	assert.Equal(t, "g-ann", linked[0].ID)
	for _, g := range linked {
		assert.Equal(t, "grp", g.GroupID)
		assert.Equal(t, "u1", g.RSVPUID)
	}

	t.Run("group id alone is not trusted", func(t *testing.T) {
		intruder := models.GuestRecord{ID: "g-x", FirstName: "Xi", GroupID: "grp", RSVPUID: "u9"}
		assert.Len(t, GuestsForRSVP(rsvp, append(guests, intruder)), 3)
	})

	t.Run("owner without group id collects by rsvpUid", func(t *testing.T) {
		loose := []models.GuestRecord{
			{ID: "a", FirstName: "Ann", LastName: "Lee", RSVPUID: "u1"},
			{ID: "b", FirstName: "Bo", RSVPUID: "u1", GroupID: "whatever"},
		}
		rsvp := rsvp
		rsvp.GuestID = ""
		linked := GuestsForRSVP(rsvp, loose)
		require.Len(t, linked, 2)
		assert.Equal(t, "a", linked[0].ID)
	})

	t.Run("unmaterialized rsvp", func(t *testing.T) {
		assert.Empty(t, GuestsForRSVP(models.RSVPRecord{SubmitterID: "u7"}, guests))
	})
}

func TestGroupFor_OrdersCompanionsBySubmission(t *testing.T) {
	rsvp, guests := fixture()

	group, ok := GroupFor(rsvp, guests)
	require.True(t, ok)
	assert.Equal(t, "grp", group.GroupID)
	assert.Equal(t, "Ann Lee", group.GroupName)
	assert.Equal(t, "r1", group.RSVPID)
	assert.Equal(t, models.SideBride, group.Side)
	assert.Equal(t, "cousin", group.Relation)
	assert.Equal(t, 3, group.TotalCount)
	assert.Equal(t, 1, group.CheckedInCount)
	assert.False(t, group.FullyCheckedIn())

	require.Len(t, group.Members, 3)
	assert.True(t, group.Members[0].IsOwner)
	assert.Equal(t, []string{"g-ann", "g-bo", "g-cy"}, group.MemberIDs())
	assert.Equal(t, "partner", group.Members[1].RelationToMain)
	assert.Equal(t, "son", group.Members[2].RelationToMain)
	require.NotNil(t, group.Members[1].Seat)
	assert.Equal(t, models.Seat{ZoneID: "z1", TableID: "t1"}, *group.Members[1].Seat)
	assert.Nil(t, group.Members[2].Seat)
	for i, m := range group.Members {
		assert.Equal(t, i, m.OrderIndex)
	}
}

func TestGroupFor_Drift(t *testing.T) {
	rsvp, guests := fixture()
	// Operator renamed Bo and the respondent added a companion never materialized.
	guests[1].FirstName = "Robert"
	rsvp.AccompanyingGuests = append(rsvp.AccompanyingGuests, models.Companion{Name: "Eve"})

	group, ok := GroupFor(rsvp, guests)
	require.True(t, ok)
	require.Len(t, group.Members, 3)
	assert.Equal(t, []string{"g-ann", "g-cy", "g-bo"}, group.MemberIDs())
	assert.Equal(t, "son", group.Members[1].RelationToMain)
	assert.Empty(t, group.Members[2].RelationToMain)
	assert.Equal(t, 2, group.Members[2].OrderIndex)
}

func TestGroupFor_OwnerTieBreakPrefersName(t *testing.T) {
	rsvp, guests := fixture()
	// Back-reference points at a companion; the name match still wins.
	rsvp.GuestID = "g-bo"

	group, ok := GroupFor(rsvp, guests)
	require.True(t, ok)
	assert.Equal(t, "g-ann", group.Members[0].ID)
	assert.True(t, group.Members[0].IsOwner)
	assert.Len(t, group.Members, 3)
}

func TestGroupFor_BlankCompanionMatchesPlaceholder(t *testing.T) {
	rsvp := models.RSVPRecord{
		ID: "r1", SubmitterID: "u1", FirstName: "Ann", IsComing: models.DispositionYes,
		AccompanyingGuests: []models.Companion{{Name: "", RelationToMain: "plus one"}},
	}
	guests := []models.GuestRecord{
		{ID: "a", FirstName: "Ann", GroupID: "g", RSVPUID: "u1"},
		{ID: "b", FirstName: "person 1", GroupID: "g", RSVPUID: "u1"},
	}

	group, ok := GroupFor(rsvp, guests)
	require.True(t, ok)
	require.Len(t, group.Members, 2)
	assert.Equal(t, "plus one", group.Members[1].RelationToMain)
}

func TestBuild(t *testing.T) {
	rsvp, guests := fixture()
	at := testutil.ReferenceTime()
	guests = append(guests,
		models.GuestRecord{ID: "g-solo", FirstName: "Zed", CreatedAt: at},
		models.GuestRecord{ID: "g-dan2", FirstName: "Dana", GroupID: "grp2", RSVPUID: "u2", CreatedAt: at.Add(time.Second)},
	)
	unmaterialized := models.RSVPRecord{ID: "r3", SubmitterID: "u3", FirstName: "Fay", IsComing: models.DispositionYes}

	idx := Build([]models.RSVPRecord{unmaterialized, rsvp}, guests)
	require.Len(t, idx.Groups, 2)
	assert.Equal(t, "Ann Lee", idx.Groups[0].GroupName)
	assert.Equal(t, "grp2", idx.Groups[1].GroupID)
	assert.Equal(t, "Dan", idx.Groups[1].GroupName)
	assert.Equal(t, []string{"g-other", "g-dan2"}, idx.Groups[1].MemberIDs())
	require.Len(t, idx.Ungrouped, 1)
	assert.Equal(t, "g-solo", idx.Ungrouped[0].ID)
}

func TestFind(t *testing.T) {
	rsvp, guests := fixture()
	rsvps := []models.RSVPRecord{rsvp}

	for _, key := range []string{"r1", "u1", "grp"} {
		group, ok := Find(key, rsvps, guests)
		require.True(t, ok, key)
		assert.Equal(t, "grp", group.GroupID, key)
	}

	group, ok := Find("grp2", rsvps, guests)
	require.True(t, ok)
	assert.Equal(t, 1, group.TotalCount)

	_, ok = Find("nope", rsvps, guests)
	assert.False(t, ok)
}
