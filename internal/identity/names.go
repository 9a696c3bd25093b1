package identity

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"wedding-ops/internal/models"
)

var folder = cases.Fold()

// NormalizeName canonicalizes a person's name for equality checks:
// Unicode NFC, case folded, inner whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	fields := strings.Fields(norm.NFC.String(name))
	return folder.String(strings.Join(fields, " "))
}

// SameName reports whether two names refer to the same spelling once normalized.
// Blank names never match.
func SameName(a, b string) bool {
	na := NormalizeName(a)
	return na != "" && na == NormalizeName(b)
}

// SortStable orders guests by creation time, then id
func SortStable(guests []models.GuestRecord) {
	sort.SliceStable(guests, func(i, j int) bool {
		if guests[i].CreatedAt.Equal(guests[j].CreatedAt) {
			return guests[i].ID < guests[j].ID
		}
		return guests[i].CreatedAt.Before(guests[j].CreatedAt)
	})
}

// OwnerAmong picks the owner of an RSVP out of guests already known to be
// linked to it. Precedence:
//  1. full name equal to the RSVP's declared name
//  2. id equal to the RSVP's guestId back-reference
//  3. any guest carrying a groupId
//  4. the earliest guest by (createdAt, id)
//
// Returns nil only when candidates is empty.
func OwnerAmong(rsvp models.RSVPRecord, candidates []models.GuestRecord) *models.GuestRecord {
	if len(candidates) == 0 {
		return nil
	}
	ordered := make([]models.GuestRecord, len(candidates))
	copy(ordered, candidates)
	SortStable(ordered)

	tiers := []func(models.GuestRecord) bool{
		func(g models.GuestRecord) bool { return SameName(g.FullName(), rsvp.FullName()) },
		func(g models.GuestRecord) bool { return rsvp.GuestID != "" && g.ID == rsvp.GuestID },
		func(g models.GuestRecord) bool { return g.GroupID != "" },
	}
	for _, match := range tiers {
		for i := range ordered {
			if match(ordered[i]) {
				owner := ordered[i]
				return &owner
			}
		}
	}
	owner := ordered[0]
	return &owner
}

// IsRSVPImported reports whether guests already contain the materialized
// owner for rsvp, by back-reference or by forward-reference.
func IsRSVPImported(rsvp models.RSVPRecord, guests []models.GuestRecord) bool {
	for _, g := range guests {
		if rsvp.GuestID != "" && g.ID == rsvp.GuestID {
			return true
		}
		if rsvp.SubmitterID != "" && g.RSVPUID == rsvp.SubmitterID {
			return true
		}
	}
	return false
}
