// Package groups derives GuestGroup views from RSVP and guest records.
//
// Every function here is pure: callers pass already-fetched collections and
// nothing is written back. Records are denormalized copies that may drift, so
// mismatches degrade to best-effort ordering instead of errors.
package groups

import (
	"sort"
	"strconv"
	"strings"

	"wedding-ops/internal/identity"
	"wedding-ops/internal/models"
)

// Index is every group that can be derived from a snapshot of the store
type Index struct {
	Groups []models.GuestGroup `json:"groups"`
	// Ungrouped holds guests without a groupId, typically entered by an operator.
	Ungrouped []models.GuestRecord `json:"ungrouped"`
}

// GuestsForRSVP returns the guests materialized from rsvp, owner first.
//
// The owner is found by the RSVP's guestId, then by rsvpUid. Other members
// must share the owner's groupId and carry rsvpUid == submitterId; when the
// owner has no groupId the rsvpUid alone decides.
func GuestsForRSVP(rsvp models.RSVPRecord, all []models.GuestRecord) []models.GuestRecord {
	owner, ok := materializedOwner(rsvp, all)
	if !ok {
		return nil
	}

	out := []models.GuestRecord{owner}
	var rest []models.GuestRecord
	for _, g := range all {
		if g.ID == owner.ID || rsvp.SubmitterID == "" || g.RSVPUID != rsvp.SubmitterID {
			continue
		}
		if owner.GroupID != "" && g.GroupID != owner.GroupID {
			continue
		}
		rest = append(rest, g)
	}
	identity.SortStable(rest)
	return append(out, rest...)
}

func materializedOwner(rsvp models.RSVPRecord, all []models.GuestRecord) (models.GuestRecord, bool) {
	if rsvp.GuestID != "" {
		for _, g := range all {
			if g.ID == rsvp.GuestID {
				return g, true
			}
		}
	}
	if rsvp.SubmitterID == "" {
		return models.GuestRecord{}, false
	}
	var linked []models.GuestRecord
	for _, g := range all {
		if g.RSVPUID == rsvp.SubmitterID {
			linked = append(linked, g)
		}
	}
	owner := identity.OwnerAmong(rsvp, linked)
	if owner == nil {
		return models.GuestRecord{}, false
	}
	return *owner, true
}

// GroupFor builds the ordered group view for rsvp. It reports false when the
// RSVP has no materialized guests.
func GroupFor(rsvp models.RSVPRecord, all []models.GuestRecord) (models.GuestGroup, bool) {
	linked := GuestsForRSVP(rsvp, all)
	if len(linked) == 0 {
		return models.GuestGroup{}, false
	}

	owner := identity.OwnerAmong(rsvp, linked)
	remaining := make([]models.GuestRecord, 0, len(linked)-1)
	for _, g := range linked {
		if g.ID != owner.ID {
			remaining = append(remaining, g)
		}
	}
	identity.SortStable(remaining)

	members := []models.GroupMember{newMember(*owner, "", true)}
	used := make([]bool, len(remaining))
	for i, companion := range rsvp.AccompanyingGuests {
		name := companion.Name
		if strings.TrimSpace(name) == "" {
			name = "person " + strconv.Itoa(i+1)
		}
		for j, g := range remaining {
			if !used[j] && identity.SameName(g.FullName(), name) {
				used[j] = true
				members = append(members, newMember(g, companion.RelationToMain, false))
				break
			}
		}
	}
	for j, g := range remaining {
		if !used[j] {
			members = append(members, newMember(g, "", false))
		}
	}

	groupName := rsvp.DisplayName()
	if groupName == "" {
		groupName = owner.GroupName
	}
	return finish(models.GuestGroup{
		GroupID:   owner.GroupID,
		GroupName: groupName,
		RSVPID:    rsvp.ID,
		Side:      rsvp.Side,
		Relation:  rsvp.Relation,
		Members:   members,
	}), true
}

// FromGuests builds a group view for guests that share a groupId but have no
// reachable RSVP. The earliest guest is treated as the owner.
func FromGuests(guests []models.GuestRecord) (models.GuestGroup, bool) {
	if len(guests) == 0 {
		return models.GuestGroup{}, false
	}
	ordered := make([]models.GuestRecord, len(guests))
	copy(ordered, guests)
	identity.SortStable(ordered)

	owner := ordered[0]
	members := make([]models.GroupMember, 0, len(ordered))
	for i, g := range ordered {
		members = append(members, newMember(g, "", i == 0))
	}

	name := owner.GroupName
	if name == "" {
		name = owner.FullName()
	}
	return finish(models.GuestGroup{
		GroupID:   owner.GroupID,
		GroupName: name,
		Side:      owner.Side,
		Relation:  owner.RelationToCouple,
		Members:   members,
	}), true
}

// Build derives every group in the snapshot, sorted by group name.
// Guests claimed by an RSVP group are never repeated in another group.
func Build(rsvps []models.RSVPRecord, guests []models.GuestRecord) Index {
	var idx Index
	claimed := make(map[string]bool)

	ordered := make([]models.RSVPRecord, len(rsvps))
	copy(ordered, rsvps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, rsvp := range ordered {
		group, ok := GroupFor(rsvp, guests)
		if !ok || claimed[group.Members[0].ID] {
			continue
		}
		for _, m := range group.Members {
			claimed[m.ID] = true
		}
		idx.Groups = append(idx.Groups, group)
	}

	byGroup := make(map[string][]models.GuestRecord)
	var groupIDs []string
	for _, g := range guests {
		if claimed[g.ID] {
			continue
		}
		if g.GroupID == "" {
			idx.Ungrouped = append(idx.Ungrouped, g)
			continue
		}
		if _, seen := byGroup[g.GroupID]; !seen {
			groupIDs = append(groupIDs, g.GroupID)
		}
		byGroup[g.GroupID] = append(byGroup[g.GroupID], g)
	}
	for _, id := range groupIDs {
		if group, ok := FromGuests(byGroup[id]); ok {
			idx.Groups = append(idx.Groups, group)
		}
	}

	sort.SliceStable(idx.Groups, func(i, j int) bool {
		a, b := identity.NormalizeName(idx.Groups[i].GroupName), identity.NormalizeName(idx.Groups[j].GroupName)
		if a != b {
			return a < b
		}
		return idx.Groups[i].GroupID < idx.Groups[j].GroupID
	})
	identity.SortStable(idx.Ungrouped)
	return idx
}

// Find locates a group by RSVP id, submitter id or group id.
func Find(key string, rsvps []models.RSVPRecord, guests []models.GuestRecord) (models.GuestGroup, bool) {
	if key == "" {
		return models.GuestGroup{}, false
	}
	for _, rsvp := range rsvps {
		if rsvp.ID == key || rsvp.SubmitterID == key {
			if group, ok := GroupFor(rsvp, guests); ok {
				return group, true
			}
		}
	}
	for _, group := range Build(rsvps, guests).Groups {
		if group.GroupID == key {
			return group, true
		}
	}
	return models.GuestGroup{}, false
}

func newMember(g models.GuestRecord, relation string, owner bool) models.GroupMember {
	m := models.GroupMember{
		ID:             g.ID,
		FullName:       g.FullName(),
		RelationToMain: relation,
		IsOwner:        owner,
		CheckedInAt:    g.CheckedInAt,
	}
	if g.Seated() {
		m.Seat = &models.Seat{ZoneID: g.ZoneID, TableID: g.TableID}
	}
	return m
}

func finish(group models.GuestGroup) models.GuestGroup {
	group.CheckedInCount = 0
	for i := range group.Members {
		group.Members[i].OrderIndex = i
		if group.Members[i].CheckedInAt != nil {
			group.CheckedInCount++
		}
	}
	group.TotalCount = len(group.Members)
	return group
}
