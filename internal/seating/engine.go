// Package seating places guests at tables without exceeding table capacity.
package seating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-ops/internal/models"
	"wedding-ops/internal/storage"
)

// AssignResult reports a bulk placement per guest
type AssignResult struct {
	TableID  string            `json:"tableId"`
	Assigned []string          `json:"assigned"`
	Failed   []string          `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// SuccessCount is the number of guests now seated at the table
func (r AssignResult) SuccessCount() int { return len(r.Assigned) }

// FailCount is the number of guests that were not placed
func (r AssignResult) FailCount() int { return len(r.Failed) }

// TableFullCount is how many guests were turned away for lack of seats
func (r AssignResult) TableFullCount() int {
	n := 0
	for _, id := range r.Failed {
		if r.Errors[id] == models.ErrTableFull.Error() {
			n++
		}
	}
	return n
}

func (r *AssignResult) fail(id string, err error) {
	r.Failed = append(r.Failed, id)
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = err.Error()
}

// BatchResult reports a bulk operation that has no capacity gate
type BatchResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    []string          `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *BatchResult) fail(id string, err error) {
	r.Failed = append(r.Failed, id)
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = err.Error()
}

// Engine performs seat assignment against the record store.
//
// Remaining capacity is recomputed from a fresh read on every call. No lock is
// held across calls, so two concurrent assignments to a nearly full table can
// overshoot its capacity; operators correct that by hand.
type Engine struct {
	records *storage.Records
	now     func() time.Time
	logger  zerolog.Logger
}

// NewEngine creates a seating engine
func NewEngine(records *storage.Records, now func() time.Time, logger zerolog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		records: records,
		now:     now,
		logger:  logger.With().Str("component", "Seating").Logger(),
	}
}

// Assign seats guests at tableID in caller order until the table is full.
// Guests beyond the free seats fail with ErrTableFull. Duplicate ids are
// collapsed and a guest already at the table succeeds without taking a seat.
func (e *Engine) Assign(ctx context.Context, guestIDs []string, tableID string) (AssignResult, error) {
	res := AssignResult{TableID: tableID}

	table, err := e.records.Table(ctx, tableID)
	if err != nil {
		return res, fmt.Errorf("load table %s: %w", tableID, err)
	}
	if _, err := e.records.Zone(ctx, table.ZoneID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("table %s: %w", tableID, models.ErrInvalidSeat)
		}
		return res, fmt.Errorf("load zone %s: %w", table.ZoneID, err)
	}

	occupants, err := e.records.GuestsAtTable(ctx, tableID)
	if err != nil {
		return res, fmt.Errorf("load occupants of %s: %w", tableID, err)
	}
	atTable := make(map[string]bool, len(occupants))
	for _, g := range occupants {
		atTable[g.ID] = true
	}
	slots := max(table.Capacity-len(occupants), 0)

	now := e.now().UTC()
	for _, id := range dedupe(guestIDs) {
		if atTable[id] {
			res.Assigned = append(res.Assigned, id)
			continue
		}
		if _, err := e.records.Guest(ctx, id); err != nil {
			res.fail(id, err)
			continue
		}
		if slots == 0 {
			res.fail(id, models.ErrTableFull)
			continue
		}
		if err := e.records.SetSeat(ctx, id, table.ZoneID, table.ID, now); err != nil {
			e.logger.Warn().Err(err).Str("guest_id", id).Str("table_id", tableID).Msg("Failed to seat guest")
			res.fail(id, err)
			continue
		}
		slots--
		res.Assigned = append(res.Assigned, id)
	}

	e.logger.Info().
		Str("table_id", tableID).
		Int("assigned", res.SuccessCount()).
		Int("failed", res.FailCount()).
		Int("table_full", res.TableFullCount()).
		Msg("Assignment finished")
	return res, nil
}

// AssignGroup seats every member of group at tableID, owner first
func (e *Engine) AssignGroup(ctx context.Context, group models.GuestGroup, tableID string) (AssignResult, error) {
	return e.Assign(ctx, group.MemberIDs(), tableID)
}

// Unassign clears zone and table for each guest
func (e *Engine) Unassign(ctx context.Context, guestIDs []string) BatchResult {
	var res BatchResult
	now := e.now().UTC()
	for _, id := range dedupe(guestIDs) {
		if err := e.records.ClearSeat(ctx, id, now); err != nil {
			res.fail(id, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	e.logger.Info().Int("unassigned", len(res.Succeeded)).Int("failed", len(res.Failed)).Msg("Unassignment finished")
	return res
}

// Layout reads zones, tables and guests and summarizes them
func (e *Engine) Layout(ctx context.Context) (Layout, error) {
	zones, err := e.records.Zones(ctx)
	if err != nil {
		return Layout{}, fmt.Errorf("list zones: %w", err)
	}
	tables, err := e.records.Tables(ctx)
	if err != nil {
		return Layout{}, fmt.Errorf("list tables: %w", err)
	}
	guests, err := e.records.Guests(ctx)
	if err != nil {
		return Layout{}, fmt.Errorf("list guests: %w", err)
	}
	return Summarize(zones, tables, guests), nil
}

// SaveZone creates or replaces a zone
func (e *Engine) SaveZone(ctx context.Context, zone models.Zone) error {
	vErr := &models.ValidationError{}
	if strings.TrimSpace(zone.ID) == "" {
		vErr.Add("zoneId", "is required")
	}
	if strings.TrimSpace(zone.Name) == "" {
		vErr.Add("zoneName", "is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	zone.Capacity = 0
	return e.records.PutZone(ctx, zone)
}

// SaveTable creates or replaces a table. Its zone must exist.
func (e *Engine) SaveTable(ctx context.Context, table models.TableData) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if _, err := e.records.Zone(ctx, table.ZoneID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("table %s: %w", table.ID, models.ErrInvalidSeat)
		}
		return err
	}
	prev, err := e.records.Table(ctx, table.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load table %s: %w", table.ID, err)
	}
	moved := err == nil && prev.ZoneID != table.ZoneID
	if err := e.records.PutTable(ctx, table); err != nil {
		return err
	}
	if moved {
		return e.moveOccupants(ctx, table)
	}
	return nil
}

// moveOccupants rewrites the zone of everyone seated at a table that changed zones
func (e *Engine) moveOccupants(ctx context.Context, table models.TableData) error {
	seated, err := e.records.GuestsAtTable(ctx, table.ID)
	if err != nil {
		return fmt.Errorf("load occupants of %s: %w", table.ID, err)
	}
	now := e.now().UTC()
	for _, g := range seated {
		if err := e.records.SetSeat(ctx, g.ID, table.ZoneID, table.ID, now); err != nil {
			return fmt.Errorf("move guest %s to zone %s: %w", g.ID, table.ZoneID, err)
		}
	}
	if len(seated) > 0 {
		e.logger.Info().Str("table_id", table.ID).Str("zone_id", table.ZoneID).Int("moved", len(seated)).Msg("Table moved between zones")
	}
	return nil
}

func validateTable(table models.TableData) error {
	vErr := &models.ValidationError{}
	if strings.TrimSpace(table.ID) == "" {
		vErr.Add("tableId", "is required")
	}
	if strings.TrimSpace(table.ZoneID) == "" {
		vErr.Add("zoneId", "is required")
	}
	if table.Capacity < 0 {
		vErr.Add("capacity", "must not be negative")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// DeleteTable unassigns everyone seated at the table, then removes it.
// The table is kept when any guest could not be unassigned.
func (e *Engine) DeleteTable(ctx context.Context, tableID string) (BatchResult, error) {
	if _, err := e.records.Table(ctx, tableID); err != nil {
		return BatchResult{}, fmt.Errorf("delete table %s: %w", tableID, err)
	}
	seated, err := e.records.GuestsAtTable(ctx, tableID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load occupants of %s: %w", tableID, err)
	}
	res := e.Unassign(ctx, guestIDs(seated))
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("delete table %s: %d guests still seated", tableID, len(res.Failed))
	}
	if err := e.records.RemoveTable(ctx, tableID); err != nil {
		return res, fmt.Errorf("delete table %s: %w", tableID, err)
	}
	e.logger.Info().Str("table_id", tableID).Int("unassigned", len(res.Succeeded)).Msg("Table deleted")
	return res, nil
}

// DeleteZone unassigns everyone seated in the zone, removes its tables, then the zone.
func (e *Engine) DeleteZone(ctx context.Context, zoneID string) (BatchResult, error) {
	if _, err := e.records.Zone(ctx, zoneID); err != nil {
		return BatchResult{}, fmt.Errorf("delete zone %s: %w", zoneID, err)
	}
	tables, err := e.records.TablesInZone(ctx, zoneID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load tables of %s: %w", zoneID, err)
	}
	// A guest counts as placed here by zone or by any of the zone's tables.
	seated, err := e.records.GuestsInZone(ctx, zoneID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load guests in %s: %w", zoneID, err)
	}
	ids := guestIDs(seated)
	for _, t := range tables {
		atTable, err := e.records.GuestsAtTable(ctx, t.ID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("load occupants of %s: %w", t.ID, err)
		}
		ids = append(ids, guestIDs(atTable)...)
	}
	res := e.Unassign(ctx, ids)
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("delete zone %s: %d guests still seated", zoneID, len(res.Failed))
	}

	for _, t := range tables {
		if err := e.records.RemoveTable(ctx, t.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("delete zone %s: table %s: %w", zoneID, t.ID, err)
		}
	}
	if err := e.records.RemoveZone(ctx, zoneID); err != nil {
		return res, fmt.Errorf("delete zone %s: %w", zoneID, err)
	}
	e.logger.Info().Str("zone_id", zoneID).Int("tables", len(tables)).Int("unassigned", len(res.Succeeded)).Msg("Zone deleted")
	return res, nil
}

func guestIDs(guests []models.GuestRecord) []string {
	out := make([]string, 0, len(guests))
	for _, g := range guests {
		out = append(out, g.ID)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
