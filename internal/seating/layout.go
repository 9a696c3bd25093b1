package seating

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"wedding-ops/internal/models"
)

// LayoutFile is the YAML seating plan an operator loads in one go:
//
//	zones:
//	  - id: garden
//	    name: Garden
//	    tables:
//	      - id: t1
//	        name: Table 1
//	        capacity: 10
type LayoutFile struct {
	Zones []ZoneSpec `yaml:"zones"`
}

// ZoneSpec is a zone and the tables it contains
type ZoneSpec struct {
	models.Zone `yaml:",inline"`
	Tables      []models.TableData `yaml:"tables"`
}

// LoadResult counts what a layout load wrote
type LoadResult struct {
	Zones  int `json:"zones"`
	Tables int `json:"tables"`
}

// ParseLayout decodes a layout, rejecting unknown fields
func ParseLayout(r io.Reader) (LayoutFile, error) {
	var layout LayoutFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&layout); err != nil {
		return LayoutFile{}, fmt.Errorf("failed to parse layout: %w", err)
	}
	return layout, nil
}

// Validate checks ids are present and unique and capacities are sane
func (l LayoutFile) Validate() error {
	vErr := &models.ValidationError{}
	zones := make(map[string]bool)
	tables := make(map[string]bool)
	for i, z := range l.Zones {
		id := strings.TrimSpace(z.ID)
		switch {
		case id == "":
			vErr.Add(fmt.Sprintf("zones[%d].id", i), "is required")
		case zones[id]:
			vErr.Add(fmt.Sprintf("zones[%d].id", i), "duplicate zone "+id)
		}
		zones[id] = true
		for j, t := range z.Tables {
			field := fmt.Sprintf("zones[%d].tables[%d]", i, j)
			tid := strings.TrimSpace(t.ID)
			switch {
			case tid == "":
				vErr.Add(field+".id", "is required")
			case tables[tid]:
				vErr.Add(field+".id", "duplicate table "+tid)
			}
			tables[tid] = true
			if t.Capacity < 0 {
				vErr.Add(field+".capacity", "must not be negative")
			}
		}
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// LoadLayout writes every zone and table of the layout. Existing records not
// named in the layout are left alone.
func (e *Engine) LoadLayout(ctx context.Context, layout LayoutFile) (LoadResult, error) {
	var res LoadResult
	if err := layout.Validate(); err != nil {
		return res, err
	}

	for _, zs := range layout.Zones {
		zone := zs.Zone
		if zone.Name == "" {
			zone.Name = zone.ID
		}
		if err := e.SaveZone(ctx, zone); err != nil {
			return res, fmt.Errorf("save zone %s: %w", zone.ID, err)
		}
		res.Zones++

		for _, table := range zs.Tables {
			table.ZoneID = zone.ID
			if table.Name == "" {
				table.Name = table.ID
			}
			if err := e.SaveTable(ctx, table); err != nil {
				return res, fmt.Errorf("save table %s: %w", table.ID, err)
			}
			res.Tables++
		}
	}

	e.logger.Info().Int("zones", res.Zones).Int("tables", res.Tables).Msg("Layout loaded")
	return res, nil
}

// LoadLayoutFile reads a YAML layout from path and loads it
func (e *Engine) LoadLayoutFile(ctx context.Context, path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to read layout file: %w", err)
	}
	layout, err := ParseLayout(bytes.NewReader(data))
	if err != nil {
		return LoadResult{}, err
	}
	return e.LoadLayout(ctx, layout)
}
