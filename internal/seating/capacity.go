package seating

import (
	"sort"

	"wedding-ops/internal/models"
)

// TableSummary is a table with its live occupancy
type TableSummary struct {
	Table     models.TableData `json:"table"`
	Occupied  int              `json:"occupied"`
	Remaining int              `json:"remaining"`
}

// ZoneSummary is a zone with its derived capacity and occupancy
type ZoneSummary struct {
	Zone     models.Zone    `json:"zone"`
	Capacity int            `json:"capacity"`
	Occupied int            `json:"occupied"`
	Tables   []TableSummary `json:"tables"`
}

// Layout is the seating plan as seen at one instant
type Layout struct {
	Zones []ZoneSummary `json:"zones"`
	// Orphans are tables whose zone no longer exists.
	Orphans  []TableSummary `json:"orphans,omitempty"`
	Seated   int            `json:"seated"`
	Unseated int            `json:"unseated"`
}

// Occupancy counts guests placed at tableID
func Occupancy(tableID string, guests []models.GuestRecord) int {
	n := 0
	for _, g := range guests {
		if g.TableID == tableID {
			n++
		}
	}
	return n
}

// Remaining returns the free seats at table, never negative
func Remaining(table models.TableData, guests []models.GuestRecord) int {
	return max(table.Capacity-Occupancy(table.ID, guests), 0)
}

// ZoneCapacity sums the capacities of the zone's tables
func ZoneCapacity(zoneID string, tables []models.TableData) int {
	total := 0
	for _, t := range tables {
		if t.ZoneID == zoneID {
			total += t.Capacity
		}
	}
	return total
}

// WithCapacity fills each zone's derived capacity from tables
func WithCapacity(zones []models.Zone, tables []models.TableData) []models.Zone {
	out := make([]models.Zone, len(zones))
	for i, z := range zones {
		z.Capacity = ZoneCapacity(z.ID, tables)
		out[i] = z
	}
	return out
}

// Summarize builds the layout view, zones and tables sorted by order then id.
func Summarize(zones []models.Zone, tables []models.TableData, guests []models.GuestRecord) Layout {
	occupied := make(map[string]int)
	var layout Layout
	for _, g := range guests {
		if g.Seated() {
			occupied[g.TableID]++
			layout.Seated++
		} else {
			layout.Unseated++
		}
	}

	summarizeTable := func(t models.TableData) TableSummary {
		return TableSummary{
			Table:     t,
			Occupied:  occupied[t.ID],
			Remaining: max(t.Capacity-occupied[t.ID], 0),
		}
	}

	sortedTables := make([]models.TableData, len(tables))
	copy(sortedTables, tables)
	sort.SliceStable(sortedTables, func(i, j int) bool {
		if sortedTables[i].Order != sortedTables[j].Order {
			return sortedTables[i].Order < sortedTables[j].Order
		}
		return sortedTables[i].ID < sortedTables[j].ID
	})

	known := make(map[string]bool, len(zones))
	for _, z := range WithCapacity(zones, tables) {
		known[z.ID] = true
		zs := ZoneSummary{Zone: z, Capacity: z.Capacity}
		for _, t := range sortedTables {
			if t.ZoneID != z.ID {
				continue
			}
			ts := summarizeTable(t)
			zs.Occupied += ts.Occupied
			zs.Tables = append(zs.Tables, ts)
		}
		layout.Zones = append(layout.Zones, zs)
	}
	for _, t := range sortedTables {
		if !known[t.ZoneID] {
			layout.Orphans = append(layout.Orphans, summarizeTable(t))
		}
	}

	sort.SliceStable(layout.Zones, func(i, j int) bool {
		a, b := layout.Zones[i].Zone, layout.Zones[j].Zone
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	return layout
}
