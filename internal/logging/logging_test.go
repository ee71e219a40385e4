package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIHandlerFormatsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(ModeCLI, &buf, slog.LevelInfo)
	ForStage(ForVersion(logger, "3.2", "x86"), "build").
		WithGroup("make").
		Info("running command", "command", "make -j ARCH=x86", "error", errors.New("boom"))

	line := buf.String()
	for _, want := range []string{
		"INFO ",
		" | running command",
		" version=3.2",
		" arch=x86",
		" stage=build",
		` make.command="make -j ARCH=x86"`,
		` make.error="boom"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestCLIHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	var buf bytes.Buffer
	logger := New(ModeCLI, &buf, &level)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug record missing after level change: %q", buf.String())
	}
}

func TestJSONMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(ModeJSON, &buf, nil).Info("measured", "version", "4.1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal JSON record: %v", err)
	}
	if record["msg"] != "measured" || record["version"] != "4.1" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestParseLevelAndMode(t *testing.T) {
	t.Parallel()

	if level, err := ParseLevel("warning"); err != nil || level != slog.LevelWarn {
		t.Fatalf("ParseLevel(warning) = %v, %v", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("ParseLevel(loud) error = nil, want non-nil")
	}
	if mode, err := ParseMode("json"); err != nil || mode != ModeJSON {
		t.Fatalf("ParseMode(json) = %v, %v", mode, err)
	}
	if _, err := ParseMode("xml"); err == nil {
		t.Fatal("ParseMode(xml) error = nil, want non-nil")
	}
}
