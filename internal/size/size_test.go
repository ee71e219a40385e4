package size

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cochaviz/kernelsize/arch"
	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/models"
	"github.com/cochaviz/kernelsize/internal/runner"
)

type stubRunner struct {
	output []byte
	code   int
	calls  []runner.Command
}

func (s *stubRunner) Run(_ context.Context, cmd runner.Command) (runner.Result, error) {
	s.calls = append(s.calls, cmd)
	return runner.Result{ExitCode: s.code, Output: s.output}, nil
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		values string
		want   models.SizeRecord
	}{
		{
			name:   "exact columns",
			header: "text data bss dec",
			values: "1000 200 50 1250",
			want:   models.SizeRecord{Text: 1000, Data: 200, BSS: 50, Dec: 1250},
		},
		{
			name:   "berkeley output with extra columns",
			header: "   text\t   data\t    bss\t    dec\t    hex\tfilename",
			values: "1000\t200\t50\t1250\t4e2\tvmlinux",
			want:   models.SizeRecord{Text: 1000, Data: 200, BSS: 50, Dec: 1250},
		},
		{
			name:   "reordered columns",
			header: "filename dec bss data text",
			values: "vmlinux 1250 50 200 1000",
			want:   models.SizeRecord{Text: 1000, Data: 200, BSS: 50, Dec: 1250},
		},
	}

	for _, tt := range tests {
		got, err := Parse(tt.header, tt.values)
		if err != nil {
			t.Fatalf("%s: Parse() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: Parse() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestParseRejectsIncompleteOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		values string
		column string
	}{
		{header: "text data dec", values: "1 2 3", column: ColumnBSS},
		{header: "text data bss dec", values: "1 2 3", column: ColumnDec},
		{header: "text data bss dec", values: "1 x 3 4", column: ColumnData},
	}

	for _, tt := range tests {
		_, err := Parse(tt.header, tt.values)
		var parseErr *models.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("Parse(%q, %q) error = %v, want *models.ParseError", tt.header, tt.values, err)
		}
		if parseErr.Column != tt.column {
			t.Fatalf("Parse(%q, %q) column = %q, want %q", tt.header, tt.values, parseErr.Column, tt.column)
		}
	}

	if _, err := ParseOutput([]byte("text data bss dec\n")); err == nil {
		t.Fatal("ParseOutput() error = nil for single line")
	}
}

func newTestMeasurer(t *testing.T, r runner.Runner) *Measurer {
	t.Helper()
	root := t.TempDir()
	return &Measurer{
		Runner: r,
		Layout: layout.Layout{BinDir: filepath.Join(root, "bin"), Arch: arch.X86},
		Tool:   "x86_64-linux-gnu-size",
	}
}

func writeImage(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestMeasure(t *testing.T) {
	t.Parallel()

	stub := &stubRunner{output: []byte("   text\t   data\t    bss\t    dec\t    hex\tfilename\n   1000\t    200\t     50\t   1250\t    4e2\tvmlinux\n")}
	m := newTestMeasurer(t, stub)
	writeImage(t, m.Layout.ELFImagePath("3.3"), 16)
	writeImage(t, m.Layout.CompressedImagePath("3.3"), 500)

	got, err := m.Measure(context.Background(), "3.3")
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	want := models.SizeRecord{Version: "3.3", Text: 1000, Data: 200, BSS: 50, Dec: 1250, Compressed: 500}
	if got != want {
		t.Fatalf("Measure() = %+v, want %+v", got, want)
	}
	if len(stub.calls) != 1 || stub.calls[0].Name != "x86_64-linux-gnu-size" || stub.calls[0].Args[0] != m.Layout.ELFImagePath("3.3") {
		t.Fatalf("size tool calls = %+v", stub.calls)
	}
}

func TestMeasureMissingCompressedImage(t *testing.T) {
	t.Parallel()

	stub := &stubRunner{}
	m := newTestMeasurer(t, stub)
	writeImage(t, m.Layout.ELFImagePath("3.3"), 16)

	_, err := m.Measure(context.Background(), "3.3")
	var missing *models.ArtifactMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Measure() error = %v, want *models.ArtifactMissingError", err)
	}
	if missing.Path != m.Layout.CompressedImagePath("3.3") {
		t.Fatalf("missing path = %q, want compressed image", missing.Path)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("size tool ran without compressed image")
	}
}

func TestMeasureSizeToolFailure(t *testing.T) {
	t.Parallel()

	m := newTestMeasurer(t, &stubRunner{code: 1})
	writeImage(t, m.Layout.ELFImagePath("3.3"), 16)
	writeImage(t, m.Layout.CompressedImagePath("3.3"), 8)

	_, err := m.Measure(context.Background(), "3.3")
	var buildErr *models.BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Measure() error = %v, want *models.BuildError", err)
	}
}
