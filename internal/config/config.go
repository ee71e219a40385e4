// Package config holds the run configuration. A Config is assembled once at
// startup from defaults, an optional YAML file and command-line flags, then
// passed by value to every stage.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cochaviz/kernelsize/arch"
	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/models"
)

// DefaultVersions is the curated release list processed when none are given.
var DefaultVersions = []string{
	"3.0", "3.1", "3.2", "3.3", "3.4", "3.5", "3.6", "3.7", "3.8",
	"3.9", "3.10", "3.11", "3.12", "3.13", "3.14", "3.15", "3.16",
	"3.17", "3.18", "3.19", "4.0", "4.1",
}

const (
	DefaultSourceMirror = "https://www.kernel.org/pub/linux/kernel"
	DefaultDownloadDir  = "dl"
	DefaultBuildDir     = "build_dir"
	DefaultBinDir       = "bin"
	DefaultArch         = "x86"
	DefaultFixupTarget  = "allnoconfig"
	DefaultMakeTool     = "make"
	DefaultSizeTool     = "size"
	DefaultUnitScale    = 1024
	DefaultUnitName     = "KiB"
	DefaultFigSize      = "8x5"
	DefaultSavePath     = "kernel-size-history"
)

// Config is the complete, immutable run configuration.
type Config struct {
	Stages   Stages   `yaml:"stages"`
	Versions []string `yaml:"versions"`

	Dirs           DirsConfig `yaml:"dirs"`
	SourceMirror   string     `yaml:"sourceMirror"`
	ArchiveFormat  string     `yaml:"archiveFormat"`
	VerifyChecksum bool       `yaml:"verifyChecksum"`

	Build BuildConfig `yaml:"build"`
	Plot  PlotConfig  `yaml:"plot"`

	Ledger     string    `yaml:"ledger"`
	PublishURL string    `yaml:"publishURL"`
	Log        LogConfig `yaml:"log"`
}

// Stages selects which pipeline stages run.
type Stages struct {
	Fetch   bool `yaml:"fetch"`
	Extract bool `yaml:"extract"`
	Build   bool `yaml:"build"`
	Delete  bool `yaml:"delete"`
	Plot    bool `yaml:"plot"`
	All     bool `yaml:"all"`
}

// Enabled reports whether the stage runs, taking All into account.
func (s Stages) Enabled(stage models.Stage) bool {
	if s.All {
		return true
	}
	switch stage {
	case models.StageFetch:
		return s.Fetch
	case models.StageExtract:
		return s.Extract
	case models.StageBuild:
		return s.Build
	case models.StageReclaim:
		return s.Delete
	case models.StageMeasure:
		return s.Plot
	default:
		return false
	}
}

// Any reports whether at least one stage is selected.
func (s Stages) Any() bool {
	return s.All || s.Fetch || s.Extract || s.Build || s.Delete || s.Plot
}

// DirsConfig holds the three on-disk artifact roots.
type DirsConfig struct {
	Download string `yaml:"download"`
	Build    string `yaml:"build"`
	Bin      string `yaml:"bin"`
}

// BuildConfig controls how kbuild is driven.
type BuildConfig struct {
	Arch            string   `yaml:"arch"`
	MakeTool        string   `yaml:"makeTool"`
	MakeArgs        []string `yaml:"makeArgs"`
	KernelConfig    string   `yaml:"kernelConfig"`
	FixupTarget     string   `yaml:"fixupTarget"`
	CrossCompile    string   `yaml:"crossCompile"`
	SizeTool        string   `yaml:"sizeTool"`
	CompressedImage string   `yaml:"compressedImage"`
}

// SizeToolName returns the size tool, prefixed for cross builds when no
// explicit tool is configured.
func (b BuildConfig) SizeToolName() string {
	if b.SizeTool != "" {
		return b.SizeTool
	}
	return b.CrossCompile + DefaultSizeTool
}

// PlotConfig holds presentation-only parameters of the trend charts.
type PlotConfig struct {
	UnitScale float64 `yaml:"unitScale"`
	UnitName  string  `yaml:"unitName"`
	FigSize   string  `yaml:"figSize"`
	SavePath  string  `yaml:"savePath"`
}

// FigSizeInches parses FigSize ("WxH" in inches).
func (p PlotConfig) FigSizeInches() (float64, float64, error) {
	width, height, ok := strings.Cut(strings.ToLower(strings.TrimSpace(p.FigSize)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("figure size %q: want WIDTHxHEIGHT", p.FigSize)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(width), 64)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("figure size %q: invalid width", p.FigSize)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(height), 64)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("figure size %q: invalid height", p.FigSize)
	}
	return w, h, nil
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Versions: append([]string(nil), DefaultVersions...),
		Dirs: DirsConfig{
			Download: DefaultDownloadDir,
			Build:    DefaultBuildDir,
			Bin:      DefaultBinDir,
		},
		SourceMirror:  DefaultSourceMirror,
		ArchiveFormat: string(layout.FormatXZ),
		Build: BuildConfig{
			Arch:        DefaultArch,
			MakeTool:    DefaultMakeTool,
			MakeArgs:    []string{"-j"},
			FixupTarget: DefaultFixupTarget,
		},
		Plot: PlotConfig{
			UnitScale: DefaultUnitScale,
			UnitName:  DefaultUnitName,
			FigSize:   DefaultFigSize,
			SavePath:  DefaultSavePath,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "cli",
		},
	}
}

// Load reads a YAML file over base. Keys absent from the file keep base's
// values.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that later stages rely on. Versions themselves are
// not validated.
func (c Config) Validate() error {
	var errs []error

	if len(c.Versions) == 0 {
		errs = append(errs, errors.New("no versions to process"))
	}
	if _, err := layout.ParseArchiveFormat(c.ArchiveFormat); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Build.Arch) == "" {
		errs = append(errs, errors.New("architecture is required"))
	}
	if c.Stages.Enabled(models.StageBuild) && strings.TrimSpace(c.Build.FixupTarget) == "" {
		errs = append(errs, errors.New("config fixup target is required when building"))
	}
	if c.Stages.Enabled(models.StageFetch) && strings.TrimSpace(c.SourceMirror) == "" {
		errs = append(errs, errors.New("source mirror is required when fetching"))
	}
	if c.Plot.UnitScale <= 0 {
		errs = append(errs, fmt.Errorf("plot unit scale must be positive, got %v", c.Plot.UnitScale))
	}
	if c.Stages.Enabled(models.StageMeasure) {
		if _, _, err := c.Plot.FigSizeInches(); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(c.Plot.SavePath) == "" {
			errs = append(errs, errors.New("plot save path is required when plotting"))
		}
	}
	if c.Build.KernelConfig != "" {
		if info, err := os.Stat(c.Build.KernelConfig); err != nil {
			errs = append(errs, fmt.Errorf("kernel config template: %w", err))
		} else if info.IsDir() {
			errs = append(errs, fmt.Errorf("kernel config template %s is a directory", c.Build.KernelConfig))
		}
	}

	return errors.Join(errs...)
}

// Layout derives the path layout. Call Validate first.
func (c Config) Layout() layout.Layout {
	format, _ := layout.ParseArchiveFormat(c.ArchiveFormat)
	return layout.Layout{
		DownloadDir:     c.Dirs.Download,
		BuildDir:        c.Dirs.Build,
		BinDir:          c.Dirs.Bin,
		Arch:            arch.Resolve(c.Build.Arch),
		Format:          format,
		CompressedImage: c.Build.CompressedImage,
	}
}

// VersionList returns the configured versions in order.
func (c Config) VersionList() []models.Version {
	return models.Versions(c.Versions...)
}
