// Package export writes recorded runs to files for downstream analysis.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/cochaviz/kernelsize/internal/ledger"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Format selects the export encoding.
type Format string

// Supported export formats.
const (
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a --format value.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (supported: json, parquet)", value)
	}
}

// Row is one size record flattened with its run's identity.
type Row struct {
	RunID      string  `parquet:"run_id" json:"runId"`
	Arch       string  `parquet:"arch" json:"arch"`
	Position   int32   `parquet:"position" json:"position"`
	Version    string  `parquet:"version" json:"version"`
	Text       int64   `parquet:"text" json:"text"`
	Data       int64   `parquet:"data" json:"data"`
	BSS        int64   `parquet:"bss" json:"bss"`
	Dec        int64   `parquet:"dec" json:"dec"`
	Compressed int64   `parquet:"compressed" json:"compressed"`
	ROMXIP     float64 `parquet:"rom_xip" json:"romXIP"`
	RAMXIP     float64 `parquet:"ram_xip" json:"ramXIP"`
}

// Rows flattens a run in aggregation order. Derived footprints use the
// run's unit scale.
func Rows(run *ledger.Run) []Row {
	rows := make([]Row, len(run.Records))
	for i, r := range run.Records {
		rows[i] = newRow(run, i, r)
	}
	return rows
}

func newRow(run *ledger.Run, position int, r models.SizeRecord) Row {
	scale := run.Scale
	if scale <= 0 {
		scale = 1
	}
	return Row{
		RunID:      run.ID,
		Arch:       run.Arch,
		Position:   int32(position),
		Version:    r.Version.String(),
		Text:       r.Text,
		Data:       r.Data,
		BSS:        r.BSS,
		Dec:        r.Dec,
		Compressed: r.Compressed,
		ROMXIP:     float64(r.ROMXIP()) / scale,
		RAMXIP:     float64(r.RAMXIP()) / scale,
	}
}

// WriteJSON encodes the run with its records.
func WriteJSON(w io.Writer, run *ledger.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// WriteParquet encodes the run's rows as a parquet file.
func WriteParquet(w io.Writer, run *ledger.Run) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(Rows(run)); err != nil {
		pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// ToFile writes the run to path in the given format.
func ToFile(path string, format Format, run *ledger.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	switch format {
	case FormatParquet:
		err = WriteParquet(f, run)
	default:
		err = WriteJSON(f, run)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
