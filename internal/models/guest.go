package models

import (
	"strings"
	"time"
)

// Side identifies which side of the couple a guest belongs to
type Side string

const (
	SideGroom Side = "groom"
	SideBride Side = "bride"
	SideBoth  Side = "both"
)

// Valid reports whether s is one of the known sides
func (s Side) Valid() bool {
	switch s {
	case SideGroom, SideBride, SideBoth:
		return true
	}
	return false
}

// Disposition represents the attendance answer of an RSVP. The empty value means pending.
type Disposition string

const (
	DispositionPending Disposition = ""
	DispositionYes     Disposition = "yes"
	DispositionNo      Disposition = "no"
)

// Declined reports whether the answer rules out attendance
func (d Disposition) Declined() bool {
	return d == DispositionNo
}

// Valid reports whether d is yes, no or pending
func (d Disposition) Valid() bool {
	switch d {
	case DispositionPending, DispositionYes, DispositionNo:
		return true
	}
	return false
}

// ParseDisposition reads an operator-typed answer. "pending" and the empty
// string both mean no answer.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToLower(strings.TrimSpace(s))); d {
	case "pending":
		return DispositionPending, nil
	case DispositionPending, DispositionYes, DispositionNo:
		return d, nil
	}
	vErr := &ValidationError{}
	vErr.Add("isComing", "must be yes, no or pending")
	return "", vErr
}

// CheckInMethod records how an arrival was registered
type CheckInMethod string

const (
	CheckInManual CheckInMethod = "manual"
)

// Companion is a person the respondent declared as accompanying them
type Companion struct {
	Name           string `json:"name"`
	RelationToMain string `json:"relationToMain,omitempty"`
}

// RSVPRecord is one respondent submission
type RSVPRecord struct {
	ID                      string      `json:"id"`
	SubmitterID             string      `json:"submitterId"`
	FirstName               string      `json:"firstName"`
	LastName                string      `json:"lastName"`
	Nickname                string      `json:"nickname,omitempty"`
	Relation                string      `json:"relation,omitempty"`
	Side                    Side        `json:"side"`
	Note                    string      `json:"note,omitempty"`
	Phone                   string      `json:"phone,omitempty"`
	IsComing                Disposition `json:"isComing,omitempty"`
	AccompanyingGuests      []Companion `json:"accompanyingGuests,omitempty"`
	AccompanyingGuestsCount int         `json:"accompanyingGuestsCount"`
	// GuestID is set once the RSVP has been materialized into guest records.
	GuestID   string    `json:"guestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullName returns "first last" with surrounding whitespace removed
func (r RSVPRecord) FullName() string {
	return joinName(r.FirstName, r.LastName)
}

// DisplayName is the label used for the group built from this RSVP
func (r RSVPRecord) DisplayName() string {
	if name := r.FullName(); name != "" {
		return name
	}
	return strings.TrimSpace(r.Nickname)
}

// GuestRecord is one physical attendee, either an RSVP owner or a companion
type GuestRecord struct {
	ID               string        `json:"id"`
	FirstName        string        `json:"firstName"`
	LastName         string        `json:"lastName,omitempty"`
	Nickname         string        `json:"nickname,omitempty"`
	RelationToCouple string        `json:"relationToCouple,omitempty"`
	Side             Side          `json:"side,omitempty"`
	Note             string        `json:"note,omitempty"`
	IsComing         Disposition   `json:"isComing,omitempty"`
	GroupID          string        `json:"groupId,omitempty"`
	GroupName        string        `json:"groupName,omitempty"`
	RSVPUID          string        `json:"rsvpUid,omitempty"`
	ZoneID           string        `json:"zoneId,omitempty"`
	TableID          string        `json:"tableId,omitempty"`
	CheckedInAt      *time.Time    `json:"checkedInAt,omitempty"`
	CheckInMethod    CheckInMethod `json:"checkInMethod,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// FullName returns "first last" with surrounding whitespace removed
func (g GuestRecord) FullName() string {
	return joinName(g.FirstName, g.LastName)
}

// Seated reports whether the guest has a table
func (g GuestRecord) Seated() bool {
	return g.TableID != ""
}

// CheckedIn reports whether an arrival has been recorded
func (g GuestRecord) CheckedIn() bool {
	return g.CheckedInAt != nil
}

// Seat is a table placement
type Seat struct {
	ZoneID  string `json:"zoneId"`
	TableID string `json:"tableId"`
}

// GroupMember is one person inside a GuestGroup view
type GroupMember struct {
	ID             string     `json:"id"`
	FullName       string     `json:"fullName"`
	RelationToMain string     `json:"relationToMain,omitempty"`
	IsOwner        bool       `json:"isOwner"`
	OrderIndex     int        `json:"orderIndex"`
	CheckedInAt    *time.Time `json:"checkedInAt,omitempty"`
	Seat           *Seat      `json:"seat,omitempty"`
}

// GuestGroup is the derived view of an owner and their companions. It is never persisted.
type GuestGroup struct {
	GroupID        string        `json:"groupId"`
	GroupName      string        `json:"groupName"`
	RSVPID         string        `json:"rsvpId,omitempty"`
	Side           Side          `json:"side,omitempty"`
	Relation       string        `json:"relation,omitempty"`
	Members        []GroupMember `json:"members"`
	CheckedInCount int           `json:"checkedInCount"`
	TotalCount     int           `json:"totalCount"`
}

// FullyCheckedIn reports whether every member has arrived
func (g GuestGroup) FullyCheckedIn() bool {
	return g.TotalCount > 0 && g.CheckedInCount == g.TotalCount
}

// MemberIDs returns guest ids in member order
func (g GuestGroup) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
