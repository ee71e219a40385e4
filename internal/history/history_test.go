package history

import (
	"context"
	"errors"
	"testing"

	"github.com/cochaviz/kernelsize/internal/models"
)

type stubMeasurer struct {
	records map[models.Version]models.SizeRecord
	errs    map[models.Version]error
	calls   []models.Version
}

func (s *stubMeasurer) Measure(_ context.Context, version models.Version) (models.SizeRecord, error) {
	s.calls = append(s.calls, version)
	if err := s.errs[version]; err != nil {
		return models.SizeRecord{}, err
	}
	return s.records[version], nil
}

func TestAggregateDerivesFootprints(t *testing.T) {
	t.Parallel()

	m := &stubMeasurer{records: map[models.Version]models.SizeRecord{
		"3.0": {Version: "3.0", Data: 100, Text: 200, BSS: 10, Compressed: 500},
		"3.1": {Version: "3.1", Data: 120, Text: 240, BSS: 20, Compressed: 600},
	}}
	a := &Aggregator{Measurer: m, Scale: 10, Unit: "dB"}

	table, err := a.Aggregate(context.Background(), models.Versions("3.0", "3.1"))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(table.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(table.Entries))
	}

	first := table.Entries[0]
	if first.Version != "3.0" || first.ROMXIP != 30 || first.RAMXIP != 11 || first.ROMCompressed != 50 || first.RAMCompressed != 31 {
		t.Fatalf("entry 3.0 = %+v", first)
	}
	if got := table.Versions(); got[0] != "3.0" || got[1] != "3.1" {
		t.Fatalf("Versions() = %v, want request order", got)
	}
	if table.Unit != "dB" || table.Scale != 10 {
		t.Fatalf("table unit/scale = %q/%v", table.Unit, table.Scale)
	}
}

func TestAggregateAbortsOnFailure(t *testing.T) {
	t.Parallel()

	measureErr := &models.ArtifactMissingError{Path: "bin/x86/linux-3.1/bzImage", Version: "3.1"}
	m := &stubMeasurer{
		records: map[models.Version]models.SizeRecord{
			"3.0": {Version: "3.0", Data: 100, Text: 200, BSS: 10, Compressed: 500},
			"3.2": {Version: "3.2"},
		},
		errs: map[models.Version]error{"3.1": measureErr},
	}
	a := &Aggregator{Measurer: m, Scale: 10}

	table, err := a.Aggregate(context.Background(), models.Versions("3.0", "3.1", "3.2"))
	if table != nil {
		t.Fatalf("Aggregate() table = %+v, want nil", table)
	}
	if !errors.Is(err, measureErr) {
		t.Fatalf("Aggregate() error = %v, want wrapped measure error", err)
	}
	if len(m.calls) != 2 {
		t.Fatalf("measured %v, want to stop after 3.1", m.calls)
	}
}

func TestAggregateRejectsZeroScale(t *testing.T) {
	t.Parallel()

	if _, err := (&Aggregator{Measurer: &stubMeasurer{}}).Aggregate(context.Background(), nil); err == nil {
		t.Fatal("Aggregate() error = nil with zero scale")
	}
}
