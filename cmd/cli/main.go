package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	simple "github.com/cochaviz/kernelsize/config"
	"github.com/cochaviz/kernelsize/internal/config"
	"github.com/cochaviz/kernelsize/internal/export"
	"github.com/cochaviz/kernelsize/internal/logging"
)

const defaultServeAddr = ":8080"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.New(logging.ModeCLI, os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&levelVar)
	err := root.ExecuteContext(ctx)
	switch code := exitCode(ctx, err); code {
	case 0:
	case 130:
		slog.Warn("command interrupted", "error", err)
		os.Exit(code)
	default:
		slog.Error("command execution failed", "error", err)
		os.Exit(code)
	}
}

// exitCode maps a command error to the process exit status: 130 when the
// run was interrupted, 1 for any other failure.
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return 130
	default:
		return 1
	}
}

// cli carries the configuration resolved before any command runs.
type cli struct {
	levelVar   *slog.LevelVar
	configPath string
	flags      config.Config
	cfg        config.Config
}

func (c *cli) logger() *slog.Logger {
	return slog.Default()
}

// resolve layers defaults, the optional config file and the flags that were
// set explicitly, then applies the logging settings.
func (c *cli) resolve(cmd *cobra.Command) error {
	base := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath, base)
		if err != nil {
			return err
		}
		base = loaded
	}

	flags := c.flags
	flags.Versions = nil
	c.cfg = config.Overlay(base, flags, cmd.Flags().Changed)

	level, err := logging.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return err
	}
	mode, err := logging.ParseMode(c.cfg.Log.Format)
	if err != nil {
		return err
	}
	c.levelVar.Set(level)
	slog.SetDefault(logging.New(mode, os.Stderr, c.levelVar))
	return nil
}

func newRootCommand(levelVar *slog.LevelVar) *cobra.Command {
	c := &cli{levelVar: levelVar, flags: config.Default()}

	root := &cobra.Command{
		Use:   "kernel-size-history [versions...]",
		Short: "Fetch, build and measure kernel releases to chart their size over time",
		Long: "Fetch, build and measure kernel releases to chart their size over time.\n\n" +
			"Versions default to the curated list 3.0 ... 4.1. Stages run per version in the\n" +
			"order fetch, extract, build, delete; plotting runs once all versions are done.",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if len(args) > 0 {
				cfg.Versions = append([]string(nil), args...)
			}

			cmdLogger := c.logger().With("command", "run")
			_, err := simple.RunWithLogger(cmd.Context(), cfg, cmdLogger)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "YAML configuration file; explicit flags override its values")
	pf.StringVar(&c.flags.Log.Level, config.FlagLogLevel, c.flags.Log.Level, "Set log verbosity (debug, info, warning, error)")
	pf.StringVar(&c.flags.Log.Format, config.FlagLogFormat, c.flags.Log.Format, "Log output format (cli, json)")
	pf.StringVar(&c.flags.Ledger, config.FlagLedger, "", "SQLite ledger recording every plotted run")

	f := root.Flags()
	f.BoolVarP(&c.flags.Stages.Fetch, config.FlagFetch, "f", false, "fetch source archives")
	f.BoolVarP(&c.flags.Stages.Extract, config.FlagExtract, "x", false, "extract sources (all sources must have been fetched)")
	f.BoolVarP(&c.flags.Stages.Build, config.FlagBuild, "b", false, "build images (all sources must have been extracted)")
	f.BoolVarP(&c.flags.Stages.Delete, config.FlagDelete, "d", false, "delete the sources when done")
	f.BoolVarP(&c.flags.Stages.Plot, config.FlagPlot, "p", false, "measure built images and plot the size history")
	f.BoolVarP(&c.flags.Stages.All, config.FlagAll, "a", false, "perform all steps")

	f.StringVar(&c.flags.Dirs.Download, config.FlagDownloadDir, config.DefaultDownloadDir, "download destination directory")
	f.StringVar(&c.flags.Dirs.Build, config.FlagBuildDir, config.DefaultBuildDir, "build directory")
	f.StringVar(&c.flags.Dirs.Bin, config.FlagBinDir, config.DefaultBinDir, "destination directory for built images")
	f.StringVar(&c.flags.SourceMirror, config.FlagSourceMirror, config.DefaultSourceMirror, "base URL of the source archive mirror")
	f.StringVar(&c.flags.ArchiveFormat, config.FlagArchiveFormat, c.flags.ArchiveFormat, "source archive compression (xz, gz, zst)")
	f.BoolVar(&c.flags.VerifyChecksum, config.FlagVerifyChecksum, false, "verify archives against the mirror's sha256sums.asc")

	f.StringArrayVar(&c.flags.Build.MakeArgs, config.FlagMakeArgs, c.flags.Build.MakeArgs, "make arguments; repeat or quote to pass several")
	f.StringVar(&c.flags.Build.Arch, config.FlagArch, config.DefaultArch, "architecture (kernel ARCH= value or a common alias such as amd64)")
	f.StringVar(&c.flags.Build.KernelConfig, config.FlagKernelConfig, "", "minimal kernel configuration template")
	f.StringVar(&c.flags.Build.FixupTarget, config.FlagFixupTarget, config.DefaultFixupTarget, "make target that adapts the template to each version")
	f.StringVar(&c.flags.Build.CrossCompile, config.FlagCrossCompile, "", "toolchain prefix passed as CROSS_COMPILE=")
	f.StringVar(&c.flags.Build.SizeTool, config.FlagSizeTool, "", "size program (default: <cross-compile>size)")
	f.StringVar(&c.flags.Build.CompressedImage, config.FlagCompressedImage, "", "compressed image name (default: per architecture)")

	f.Float64Var(&c.flags.Plot.UnitScale, config.FlagUnitScale, config.DefaultUnitScale, "divide sizes by this value")
	f.StringVar(&c.flags.Plot.UnitName, config.FlagUnitName, config.DefaultUnitName, "unit label for the scaled sizes")
	f.StringVar(&c.flags.Plot.FigSize, config.FlagFigSize, config.DefaultFigSize, "figure size in inches, WIDTHxHEIGHT")
	f.StringVar(&c.flags.Plot.SavePath, config.FlagSavePath, config.DefaultSavePath, "chart path prefix; _<n>.png is appended")
	f.StringVar(&c.flags.PublishURL, config.FlagPublishURL, "", "bucket URL receiving charts and history.json (file://, s3://, gs://, mem://)")

	root.AddCommand(
		newExportCommand(c),
		newServeCommand(c),
	)
	return root
}

func newExportCommand(c *cli) *cobra.Command {
	var (
		format string
		out    string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Args:  cobra.NoArgs,
		Short: "Write a recorded run from the ledger to a JSON or parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			cmdLogger := c.logger().With("command", "export")
			return simple.Export(cmd.Context(), c.cfg.Ledger, runID, f, out, cmdLogger)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(export.FormatJSON), "Output format (json, parquet)")
	cmd.Flags().StringVar(&out, "out", "", "Output file")
	cmd.Flags().StringVar(&runID, "run", "", "Run ID to export (default: latest)")
	cmd.MarkFlagRequired("out")

	return cmd
}

func newServeCommand(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Serve the ledger over a read-only HTTP API; press Ctrl+C to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := c.logger().With("command", "serve")
			return simple.Serve(cmd.Context(), c.cfg.Ledger, addr, cmdLogger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "Listen address")
	return cmd
}
