package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wedding-ops/internal/models"
)

// Records provides typed access to the RSVP, guest and seating collections.
type Records struct {
	store Store
}

// NewRecords wraps a Store with typed helpers
func NewRecords(store Store) *Records {
	return &Records{store: store}
}

// Store exposes the underlying document store
func (r *Records) Store() Store {
	return r.store
}

func get[T any](ctx context.Context, s Store, c Collection, key string) (T, error) {
	var out T
	data, err := s.Get(ctx, c, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", c, key, err)
	}
	return out, nil
}

func decodeAll[T any](c Collection, docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c, doc.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func list[T any](ctx context.Context, s Store, c Collection) ([]T, error) {
	docs, err := s.GetAll(ctx, c)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c, docs)
}

func query[T any](ctx context.Context, s Store, c Collection, field, value string) ([]T, error) {
	docs, err := s.QueryByField(ctx, c, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c, docs)
}

func put(ctx context.Context, s Store, c Collection, key string, v any) error {
	if key == "" {
		return fmt.Errorf("put %s: empty key", c)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, key, err)
	}
	return s.Set(ctx, c, key, data)
}

// --- RSVPs ---

// RSVP fetches one RSVP by id
func (r *Records) RSVP(ctx context.Context, id string) (models.RSVPRecord, error) {
	return get[models.RSVPRecord](ctx, r.store, RSVPs, id)
}

// RSVPs lists every RSVP ordered by id
func (r *Records) RSVPs(ctx context.Context) ([]models.RSVPRecord, error) {
	return list[models.RSVPRecord](ctx, r.store, RSVPs)
}

// RSVPsBySubmitter returns RSVPs filed by the given submitter
func (r *Records) RSVPsBySubmitter(ctx context.Context, submitterID string) ([]models.RSVPRecord, error) {
	return query[models.RSVPRecord](ctx, r.store, RSVPs, "submitterId", submitterID)
}

// RSVPsByGuest returns RSVPs whose back-reference points at guestID
func (r *Records) RSVPsByGuest(ctx context.Context, guestID string) ([]models.RSVPRecord, error) {
	return query[models.RSVPRecord](ctx, r.store, RSVPs, "guestId", guestID)
}

// PutRSVP stores the full RSVP record
func (r *Records) PutRSVP(ctx context.Context, rsvp models.RSVPRecord) error {
	return put(ctx, r.store, RSVPs, rsvp.ID, rsvp)
}

// LinkGuest writes the materialized owner back-reference onto the RSVP
func (r *Records) LinkGuest(ctx context.Context, rsvpID, guestID string, at time.Time) error {
	return r.store.Update(ctx, RSVPs, rsvpID, map[string]any{
		"guestId":   guestID,
		"updatedAt": at,
	})
}

// UnlinkGuest clears the RSVP back-reference
func (r *Records) UnlinkGuest(ctx context.Context, rsvpID string, at time.Time) error {
	return r.store.Update(ctx, RSVPs, rsvpID, map[string]any{
		"guestId":   nil,
		"updatedAt": at,
	})
}

// --- Guests ---

// Guest fetches one guest by id
func (r *Records) Guest(ctx context.Context, id string) (models.GuestRecord, error) {
	return get[models.GuestRecord](ctx, r.store, Guests, id)
}

// Guests lists every guest ordered by id
func (r *Records) Guests(ctx context.Context) ([]models.GuestRecord, error) {
	return list[models.GuestRecord](ctx, r.store, Guests)
}

// GuestsByRSVPUID returns guests materialized from the given submitter
func (r *Records) GuestsByRSVPUID(ctx context.Context, submitterID string) ([]models.GuestRecord, error) {
	return query[models.GuestRecord](ctx, r.store, Guests, "rsvpUid", submitterID)
}

// GuestsByGroup returns guests sharing a group id
func (r *Records) GuestsByGroup(ctx context.Context, groupID string) ([]models.GuestRecord, error) {
	return query[models.GuestRecord](ctx, r.store, Guests, "groupId", groupID)
}

// GuestsAtTable returns guests seated at a table
func (r *Records) GuestsAtTable(ctx context.Context, tableID string) ([]models.GuestRecord, error) {
	return query[models.GuestRecord](ctx, r.store, Guests, "tableId", tableID)
}

// GuestsInZone returns guests seated anywhere in a zone
func (r *Records) GuestsInZone(ctx context.Context, zoneID string) ([]models.GuestRecord, error) {
	return query[models.GuestRecord](ctx, r.store, Guests, "zoneId", zoneID)
}

// PutGuest stores the full guest record
func (r *Records) PutGuest(ctx context.Context, guest models.GuestRecord) error {
	return put(ctx, r.store, Guests, guest.ID, guest)
}

// RemoveGuest deletes a guest record
func (r *Records) RemoveGuest(ctx context.Context, id string) error {
	return r.store.Remove(ctx, Guests, id)
}

// SetSeat places a guest; zone and table are written together in one update
func (r *Records) SetSeat(ctx context.Context, guestID, zoneID, tableID string, at time.Time) error {
	return r.store.Update(ctx, Guests, guestID, map[string]any{
		"zoneId":    zoneID,
		"tableId":   tableID,
		"updatedAt": at,
	})
}

// ClearSeat removes a guest's placement
func (r *Records) ClearSeat(ctx context.Context, guestID string, at time.Time) error {
	return r.store.Update(ctx, Guests, guestID, map[string]any{
		"zoneId":    nil,
		"tableId":   nil,
		"updatedAt": at,
	})
}

// SetCheckIn records an arrival
func (r *Records) SetCheckIn(ctx context.Context, guestID string, at time.Time, method models.CheckInMethod) error {
	return r.store.Update(ctx, Guests, guestID, map[string]any{
		"checkedInAt":   at,
		"checkInMethod": method,
		"updatedAt":     at,
	})
}

// ClearCheckIn removes an arrival
func (r *Records) ClearCheckIn(ctx context.Context, guestID string, at time.Time) error {
	return r.store.Update(ctx, Guests, guestID, map[string]any{
		"checkedInAt":   nil,
		"checkInMethod": nil,
		"updatedAt":     at,
	})
}

// SetGuestDisposition overrides one person's attendance answer
func (r *Records) SetGuestDisposition(ctx context.Context, guestID string, d models.Disposition, at time.Time) error {
	var value any = d
	if d == models.DispositionPending {
		value = nil
	}
	return r.store.Update(ctx, Guests, guestID, map[string]any{
		"isComing":  value,
		"updatedAt": at,
	})
}

// --- Zones and tables ---

// Zone fetches one zone by id
func (r *Records) Zone(ctx context.Context, id string) (models.Zone, error) {
	return get[models.Zone](ctx, r.store, Zones, id)
}

// Zones lists every zone ordered by id
func (r *Records) Zones(ctx context.Context) ([]models.Zone, error) {
	return list[models.Zone](ctx, r.store, Zones)
}

// PutZone stores a zone
func (r *Records) PutZone(ctx context.Context, zone models.Zone) error {
	return put(ctx, r.store, Zones, zone.ID, zone)
}

// RemoveZone deletes a zone
func (r *Records) RemoveZone(ctx context.Context, id string) error {
	return r.store.Remove(ctx, Zones, id)
}

// Table fetches one table by id
func (r *Records) Table(ctx context.Context, id string) (models.TableData, error) {
	return get[models.TableData](ctx, r.store, Tables, id)
}

// Tables lists every table ordered by id
func (r *Records) Tables(ctx context.Context) ([]models.TableData, error) {
	return list[models.TableData](ctx, r.store, Tables)
}

// TablesInZone returns the tables belonging to a zone
func (r *Records) TablesInZone(ctx context.Context, zoneID string) ([]models.TableData, error) {
	return query[models.TableData](ctx, r.store, Tables, "zoneId", zoneID)
}

// PutTable stores a table
func (r *Records) PutTable(ctx context.Context, table models.TableData) error {
	return put(ctx, r.store, Tables, table.ID, table)
}

// RemoveTable deletes a table
func (r *Records) RemoveTable(ctx context.Context, id string) error {
	return r.store.Remove(ctx, Tables, id)
}
