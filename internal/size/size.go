// Package size measures built kernel images.
package size

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
	"github.com/cochaviz/kernelsize/internal/runner"
)

// Columns recognized in size tool output. Any other column is ignored.
const (
	ColumnText = "text"
	ColumnData = "data"
	ColumnBSS  = "bss"
	ColumnDec  = "dec"
)

// Parse reads a Berkeley-format header line and value line. Columns are
// matched by position; only text, data, bss and dec are kept and all four
// must be present with integer values.
func Parse(header, values string) (models.SizeRecord, error) {
	names := strings.Fields(header)
	fields := strings.Fields(values)

	found := make(map[string]int64, 4)
	for i := 0; i < len(names) && i < len(fields); i++ {
		name := strings.ToLower(names[i])
		switch name {
		case ColumnText, ColumnData, ColumnBSS, ColumnDec:
		default:
			continue
		}
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return models.SizeRecord{}, &models.ParseError{Column: name, Input: values, Reason: "is not an integer"}
		}
		found[name] = n
	}

	for _, column := range []string{ColumnText, ColumnData, ColumnBSS, ColumnDec} {
		if _, ok := found[column]; !ok {
			return models.SizeRecord{}, &models.ParseError{Column: column, Input: header + "\n" + values, Reason: "is missing"}
		}
	}

	return models.SizeRecord{
		Text: found[ColumnText],
		Data: found[ColumnData],
		BSS:  found[ColumnBSS],
		Dec:  found[ColumnDec],
	}, nil
}

// ParseOutput parses the first two non-blank lines of size tool output.
func ParseOutput(output []byte) (models.SizeRecord, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() && len(lines) < 2 {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return models.SizeRecord{}, &models.ParseError{Input: string(output), Reason: "expected a header line and a value line"}
	}
	return Parse(lines[0], lines[1])
}

// Measurer produces the size record of one built version.
type Measurer struct {
	Logger *slog.Logger
	Runner runner.Runner
	Layout layout.Layout

	// Tool is the size program, "size" when empty.
	Tool string
}

// Measure stats the compressed image and runs the size tool on the ELF image
// in version's output directory. Both images must exist.
func (m *Measurer) Measure(ctx context.Context, version models.Version) (models.SizeRecord, error) {
	if m.Runner == nil {
		return models.SizeRecord{}, errors.New("command runner is not configured")
	}

	elf := m.Layout.ELFImagePath(version)
	if info, err := os.Stat(elf); err != nil || !info.Mode().IsRegular() {
		return models.SizeRecord{}, &models.ArtifactMissingError{Path: elf, Version: version}
	}
	compressed := m.Layout.CompressedImagePath(version)
	info, err := os.Stat(compressed)
	if err != nil || !info.Mode().IsRegular() {
		return models.SizeRecord{}, &models.ArtifactMissingError{Path: compressed, Version: version}
	}

	cmd := runner.Command{Name: m.tool(), Args: []string{elf}, Capture: true}
	result, err := runner.Require(ctx, m.Runner, cmd, func(f models.CommandFailure) error {
		return &models.BuildError{CommandFailure: f, Action: "measuring kernel size"}
	})
	if err != nil {
		return models.SizeRecord{}, err
	}

	record, err := ParseOutput(result.Output)
	if err != nil {
		return models.SizeRecord{}, fmt.Errorf("measure %s: %w", version, err)
	}
	record.Version = version
	record.Compressed = info.Size()

	logging.ForStage(logging.Ensure(m.Logger), string(models.StageMeasure)).Debug("kernel measured",
		"version", version.String(),
		"text", humanize.IBytes(uint64(record.Text)),
		"data", humanize.IBytes(uint64(record.Data)),
		"bss", humanize.IBytes(uint64(record.BSS)),
		"compressed", humanize.IBytes(uint64(record.Compressed)),
	)
	return record, nil
}

func (m *Measurer) tool() string {
	if m.Tool != "" {
		return m.Tool
	}
	return "size"
}
