// Package build configures and compiles an extracted kernel tree and collects
// the resulting images.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cochaviz/kernelsize/internal/layout"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
	"github.com/cochaviz/kernelsize/internal/runner"
)

// Orchestrator runs the configure and build invocations for one version in
// its source tree, then copies the images into the version's output
// directory.
type Orchestrator struct {
	Logger *slog.Logger
	Runner runner.Runner
	Layout layout.Layout

	MakeTool string
	MakeArgs []string

	// KernelConfig is the minimal configuration template. Empty means the
	// fixup target runs against kbuild's own defaults.
	KernelConfig string
	FixupTarget  string
	CrossCompile string
}

func (o *Orchestrator) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Build configures, builds and collects images for version.
func (o *Orchestrator) Build(ctx context.Context, version models.Version) (models.BuildOutput, error) {
	if o.Runner == nil {
		return models.BuildOutput{}, errors.New("command runner is not configured")
	}

	tree := o.Layout.SourceDir(version)
	info, err := os.Stat(tree)
	if err != nil || !info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return models.BuildOutput{}, &models.MissingInputError{Path: tree, What: "build directory", Stage: models.StageExtract}
		}
		return models.BuildOutput{}, fmt.Errorf("stat %s: %w", tree, err)
	}

	logger := logging.ForStage(logging.ForVersion(o.logger(), version.String(), o.Layout.Arch.String()), string(models.StageBuild))

	configure, err := o.configureCommand(tree)
	if err != nil {
		return models.BuildOutput{}, err
	}
	logger.Info(fmt.Sprintf("Configure %s in %s", version, tree), "command", configure.String())
	if _, err := runner.Require(ctx, o.Runner, configure, func(f models.CommandFailure) error {
		return &models.ConfigurationError{CommandFailure: f}
	}); err != nil {
		return models.BuildOutput{}, err
	}

	compile := o.buildCommand(tree)
	logger.Info(fmt.Sprintf("Build %s in %s", version, tree), "command", compile.String())
	if _, err := runner.Require(ctx, o.Runner, compile, func(f models.CommandFailure) error {
		return &models.BuildError{CommandFailure: f}
	}); err != nil {
		return models.BuildOutput{}, err
	}

	images, err := o.collectImages(version)
	if err != nil {
		return models.BuildOutput{}, err
	}

	outputDir := o.Layout.OutputDir(version)
	store := &ImageStore{BaseDir: outputDir}
	for _, image := range images {
		logger.Info(fmt.Sprintf("Copying %s to %s", image, outputDir))
	}
	stored, err := store.StoreImages(images)
	if err != nil {
		return models.BuildOutput{}, err
	}

	output := models.BuildOutput{
		Version:   version,
		OutputDir: outputDir,
		ELFImage:  stored[0],
	}
	output.CompressedImages = stored[1:]
	logger.Info("kernel images collected", "output_dir", outputDir, "images", len(stored))
	return output, nil
}

// configureCommand installs the template as the tree's .config and returns
// the fixup invocation. KCONFIG_ALLCONFIG makes the all*config targets start
// from the template instead of discarding it.
func (o *Orchestrator) configureCommand(tree string) (runner.Command, error) {
	args := o.commonArgs()

	if o.KernelConfig != "" {
		template, err := filepath.Abs(o.KernelConfig)
		if err != nil {
			return runner.Command{}, fmt.Errorf("resolve kernel config %s: %w", o.KernelConfig, err)
		}
		if err := copyFile(template, filepath.Join(tree, ".config")); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return runner.Command{}, &models.MissingInputError{Path: template, What: "kernel config template"}
			}
			return runner.Command{}, fmt.Errorf("install kernel config %s: %w", template, err)
		}
		args = append(args, "KCONFIG_ALLCONFIG="+template)
	}

	args = append(args, o.FixupTarget)
	return runner.Command{Name: o.makeTool(), Args: args, Dir: tree}, nil
}

func (o *Orchestrator) buildCommand(tree string) runner.Command {
	return runner.Command{Name: o.makeTool(), Args: o.commonArgs(), Dir: tree}
}

// commonArgs holds the make arguments followed by the architecture selection,
// the order the two invocations share.
func (o *Orchestrator) commonArgs() []string {
	var args []string
	for _, arg := range o.MakeArgs {
		args = append(args, strings.Fields(arg)...)
	}
	args = append(args, "ARCH="+o.Layout.Arch.String())
	if o.CrossCompile != "" {
		args = append(args, "CROSS_COMPILE="+o.CrossCompile)
	}
	return args
}

func (o *Orchestrator) makeTool() string {
	if o.MakeTool != "" {
		return o.MakeTool
	}
	return "make"
}

// collectImages lists vmlinux first, then every boot image kbuild produced.
// A boot image whose name does not end in "Image" (Image.gz, vmlinuz) is
// added when it is the architecture's configured compressed image.
func (o *Orchestrator) collectImages(version models.Version) ([]string, error) {
	elf := o.Layout.BuiltELFImage(version)
	if info, err := os.Stat(elf); err != nil || !info.Mode().IsRegular() {
		return nil, &models.ArtifactMissingError{Path: elf, Version: version}
	}

	boot, err := filepath.Glob(o.Layout.BootImagePattern(version))
	if err != nil {
		return nil, fmt.Errorf("list boot images: %w", err)
	}

	named := filepath.Join(filepath.Dir(o.Layout.BootImagePattern(version)), o.Layout.CompressedImageName())
	if !slices.Contains(boot, named) {
		if info, err := os.Stat(named); err == nil && info.Mode().IsRegular() {
			boot = append(boot, named)
		}
	}

	images := []string{elf}
	for _, path := range boot {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			images = append(images, path)
		}
	}
	return images, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
