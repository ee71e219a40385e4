package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cochaviz/kernelsize/arch"
	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/models"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Stages.All = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := len(cfg.VersionList()); got != len(DefaultVersions) {
		t.Fatalf("VersionList() length = %d, want %d", got, len(DefaultVersions))
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
versions: ["4.0", "4.1"]
dirs:
  bin: /srv/bin
build:
  arch: aarch64
  makeArgs: ["-j8"]
  crossCompile: aarch64-linux-gnu-
plot:
  unitName: MiB
  unitScale: 1048576
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if strings.Join(cfg.Versions, ",") != "4.0,4.1" {
		t.Fatalf("Versions = %v, want [4.0 4.1]", cfg.Versions)
	}
	if cfg.Dirs.Bin != "/srv/bin" || cfg.Dirs.Download != DefaultDownloadDir {
		t.Fatalf("Dirs = %+v, want bin overridden and download default", cfg.Dirs)
	}
	if cfg.Build.FixupTarget != DefaultFixupTarget {
		t.Fatalf("FixupTarget = %q, want default", cfg.Build.FixupTarget)
	}
	if got := cfg.Build.SizeToolName(); got != "aarch64-linux-gnu-size" {
		t.Fatalf("SizeToolName() = %q, want aarch64-linux-gnu-size", got)
	}

	l := cfg.Layout()
	if l.Arch != arch.ARM64 {
		t.Fatalf("Layout().Arch = %q, want arm64", l.Arch)
	}
	if l.Format != layout.FormatXZ {
		t.Fatalf("Layout().Format = %q, want xz", l.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), Default()); err == nil {
		t.Fatal("Load() error = nil, want non-nil")
	}
}

func TestOverlayOnlyChangedFlags(t *testing.T) {
	t.Parallel()

	base := Default()
	base.Dirs.Bin = "/from/file"
	base.Build.Arch = "arm"

	flags := Default()
	flags.Build.Arch = "x86"
	flags.Dirs.Bin = "bin"
	flags.Stages.Extract = true
	flags.Versions = []string{"3.7"}

	changed := map[string]bool{FlagArch: true, FlagExtract: true}
	out := Overlay(base, flags, func(name string) bool { return changed[name] })

	if out.Build.Arch != "x86" {
		t.Fatalf("Arch = %q, want flag value x86", out.Build.Arch)
	}
	if out.Dirs.Bin != "/from/file" {
		t.Fatalf("Bin = %q, want file value", out.Dirs.Bin)
	}
	if !out.Stages.Enabled(models.StageExtract) || out.Stages.Enabled(models.StageFetch) {
		t.Fatalf("Stages = %+v, want only extract", out.Stages)
	}
	if len(out.Versions) != 1 || out.Versions[0] != "3.7" {
		t.Fatalf("Versions = %v, want [3.7]", out.Versions)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Stages.Plot = true
	cfg.ArchiveFormat = "rar"
	cfg.Plot.UnitScale = 0
	cfg.Plot.FigSize = "wide"
	cfg.Versions = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}
	for _, want := range []string{"rar", "unit scale", "figure size", "no versions"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestStagesAllEnablesEverything(t *testing.T) {
	t.Parallel()

	s := Stages{All: true}
	for _, stage := range []models.Stage{models.StageFetch, models.StageExtract, models.StageBuild, models.StageReclaim, models.StageMeasure} {
		if !s.Enabled(stage) {
			t.Fatalf("Enabled(%s) = false with All", stage)
		}
	}
	if (Stages{}).Any() {
		t.Fatal("Any() = true for empty stages")
	}
}

func TestFigSizeInches(t *testing.T) {
	t.Parallel()

	w, h, err := PlotConfig{FigSize: "10x4.5"}.FigSizeInches()
	if err != nil {
		t.Fatalf("FigSizeInches() error = %v", err)
	}
	if w != 10 || h != 4.5 {
		t.Fatalf("FigSizeInches() = %v x %v, want 10 x 4.5", w, h)
	}
}
