// Package history turns per-version size records into the trend table that
// is charted, recorded and published.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Measurer measures one built version.
type Measurer interface {
	Measure(ctx context.Context, version models.Version) (models.SizeRecord, error)
}

// Entry is one version's footprints in the table's unit.
type Entry struct {
	Version       models.Version    `json:"version"`
	ROMXIP        float64           `json:"romXIP"`
	RAMXIP        float64           `json:"ramXIP"`
	ROMCompressed float64           `json:"romCompressed"`
	RAMCompressed float64           `json:"ramCompressed"`
	Record        models.SizeRecord `json:"record"`
}

// Table holds entries in the order the versions were requested.
type Table struct {
	Unit    string  `json:"unit"`
	Scale   float64 `json:"scale"`
	Entries []Entry `json:"entries"`
}

// Versions lists the table's versions in order.
func (t *Table) Versions() []models.Version {
	out := make([]models.Version, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Version
	}
	return out
}

// Records lists the raw size records in order.
func (t *Table) Records() []models.SizeRecord {
	out := make([]models.SizeRecord, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Record
	}
	return out
}

// NewEntry derives the scaled footprints of a record.
func NewEntry(record models.SizeRecord, scale float64) Entry {
	return Entry{
		Version:       record.Version,
		ROMXIP:        float64(record.ROMXIP()) / scale,
		RAMXIP:        float64(record.RAMXIP()) / scale,
		ROMCompressed: float64(record.Compressed) / scale,
		RAMCompressed: float64(record.Total()) / scale,
		Record:        record,
	}
}

// Aggregator measures every version and builds the table.
type Aggregator struct {
	Logger   *slog.Logger
	Measurer Measurer
	Scale    float64
	Unit     string
}

// Aggregate measures versions in order. The first failure aborts the whole
// aggregation and no table is returned.
func (a *Aggregator) Aggregate(ctx context.Context, versions []models.Version) (*Table, error) {
	if a.Measurer == nil {
		return nil, errors.New("measurer is not configured")
	}
	if a.Scale <= 0 {
		return nil, fmt.Errorf("unit scale must be positive, got %v", a.Scale)
	}

	logger := logging.Ensure(a.Logger)
	table := &Table{Unit: a.Unit, Scale: a.Scale, Entries: make([]Entry, 0, len(versions))}
	for _, version := range versions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := a.Measurer.Measure(ctx, version)
		if err != nil {
			return nil, fmt.Errorf("aggregate history at %s: %w", version, err)
		}
		entry := NewEntry(record, a.Scale)
		logger.Info("version measured",
			"version", version.String(),
			"rom_xip", entry.ROMXIP,
			"ram_xip", entry.RAMXIP,
			"rom_compressed", entry.ROMCompressed,
			"ram_compressed", entry.RAMCompressed,
			"unit", a.Unit,
		)
		table.Entries = append(table.Entries, entry)
	}
	return table, nil
}
