package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, ctx context.Context, args ...string) (int, error) {
	t.Helper()

	var levelVar slog.LevelVar
	root := newRootCommand(&levelVar)
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.ExecuteContext(ctx)
	return exitCode(ctx, err), err
}

func dirFlags(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	return root, []string{
		"--download-dir", filepath.Join(root, "dl"),
		"--build-dir", filepath.Join(root, "build_dir"),
		"--bin-dir", filepath.Join(root, "bin"),
	}
}

func TestExtractWithoutArchiveExitsNonZero(t *testing.T) {
	root, dirs := dirFlags(t)
	args := append([]string{"--extract-sources"}, dirs...)
	args = append(args, "3.7")

	code, err := runCLI(t, context.Background(), args...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (err = %v)", code, err)
	}
	archive := filepath.Join(root, "dl", "linux-3.7.tar.xz")
	if err == nil || !strings.Contains(err.Error(), archive) {
		t.Fatalf("error = %v, want it to name %s", err, archive)
	}
	if _, err := os.Stat(filepath.Join(root, "build_dir")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("build directory created: err=%v", err)
	}
}

func TestNoStagesExitsZero(t *testing.T) {
	_, dirs := dirFlags(t)

	if code, err := runCLI(t, context.Background(), dirs...); code != 0 {
		t.Fatalf("exit code = %d, want 0 (err = %v)", code, err)
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{name: "success", ctx: context.Background(), err: nil, want: 0},
		{name: "failure", ctx: context.Background(), err: errors.New("build failed"), want: 1},
		{name: "canceled error", ctx: context.Background(), err: context.Canceled, want: 130},
		{name: "interrupted run", ctx: cancelled, err: errors.New("make: killed"), want: 130},
	}

	for _, tt := range tests {
		if got := exitCode(tt.ctx, tt.err); got != tt.want {
			t.Fatalf("%s: exitCode() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
