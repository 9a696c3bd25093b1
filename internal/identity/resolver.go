// Package identity decides whether an RSVP already has a materialized owner guest.
package identity

import (
	"context"
	"errors"
	"fmt"

	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
)

// Resolver looks up the owner guest of an RSVP. It never writes.
type Resolver struct {
	records *storage.Records
}

// NewResolver creates a resolver over the record store
func NewResolver(records *storage.Records) *Resolver {
	return &Resolver{records: records}
}

// ResolveOwner returns the owner guest for rsvp, or nil when none exists.
//
// The back-reference rsvp.GuestID is tried first. A back-reference to a
// deleted guest falls through to the forward-reference scan on rsvpUid.
// Name-only matching against unrelated guests is deliberately not used here.
func (r *Resolver) ResolveOwner(ctx context.Context, rsvp models.RSVPRecord) (*models.GuestRecord, error) {
	if rsvp.GuestID != "" {
		guest, err := r.records.Guest(ctx, rsvp.GuestID)
		if err == nil {
			return &guest, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("resolve owner by guestId: %w", err)
		}
	}

	if rsvp.SubmitterID == "" {
		return nil, nil
	}

	linked, err := r.records.GuestsByRSVPUID(ctx, rsvp.SubmitterID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner by rsvpUid: %w", err)
	}
	return OwnerAmong(rsvp, linked), nil
}
