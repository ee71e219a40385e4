package simple

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cochaviz/kernelsize/arch"
	"github.com/cochaviz/kernelsize/internal/archive"
	"github.com/cochaviz/kernelsize/internal/build"
	"github.com/cochaviz/kernelsize/internal/config"
	"github.com/cochaviz/kernelsize/internal/export"
	"github.com/cochaviz/kernelsize/internal/fetch"
	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/ledger"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
	"github.com/cochaviz/kernelsize/internal/pipeline"
	"github.com/cochaviz/kernelsize/internal/publish"
	"github.com/cochaviz/kernelsize/internal/render"
	"github.com/cochaviz/kernelsize/internal/runner"
	"github.com/cochaviz/kernelsize/internal/server"
	"github.com/cochaviz/kernelsize/internal/size"
	"github.com/cochaviz/kernelsize/internal/workspace"
)

// Run executes the enabled stages for every configured version.
func Run(ctx context.Context, cfg config.Config) (*pipeline.Result, error) {
	return RunWithLogger(ctx, cfg, nil)
}

// RunWithLogger executes the enabled stages for every configured version
// using the provided logger.
func RunWithLogger(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *pipeline.Result, err error) {
	logger = logging.Ensure(logger).With("component", "config.simple")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Stages.Any() {
		logger.Warn("no stage selected, nothing to do", "hint", "--all")
		return &pipeline.Result{}, nil
	}

	l := cfg.Layout()
	if !l.Arch.IsValid() {
		logger.Warn("unknown architecture, using default compressed image name", "arch", l.Arch.String(), "image", l.CompressedImageName())
	}
	if host := arch.Host(); cfg.Stages.Enabled(models.StageBuild) && cfg.Build.CrossCompile == "" && host != "" && host != l.Arch {
		logger.Warn("building for a foreign architecture without a cross toolchain", "arch", l.Arch.String(), "host", host.String(), "hint", "--cross-compile")
	}

	cmdRunner := &runner.ExecRunner{Logger: logger.With("component", "runner")}

	measurer := &size.Measurer{
		Logger: logger.With("service", "size"),
		Runner: cmdRunner,
		Layout: l,
		Tool:   cfg.Build.SizeToolName(),
	}

	width, height, _ := cfg.Plot.FigSizeInches()

	p := &pipeline.Pipeline{
		Logger: logger.With("service", "pipeline"),
		Stages: cfg.Stages,
		Arch:   l.Arch.String(),
		Fetcher: &fetch.Fetcher{
			Logger:         logger.With("service", "fetch"),
			Client:         &http.Client{},
			Layout:         l,
			Mirror:         cfg.SourceMirror,
			Progress:       os.Stdout,
			VerifyChecksum: cfg.VerifyChecksum,
		},
		Expander: &archive.Expander{
			Logger: logger.With("service", "archive"),
			Layout: l,
		},
		Builder: &build.Orchestrator{
			Logger:       logger.With("service", "build"),
			Runner:       cmdRunner,
			Layout:       l,
			MakeTool:     cfg.Build.MakeTool,
			MakeArgs:     cfg.Build.MakeArgs,
			KernelConfig: cfg.Build.KernelConfig,
			FixupTarget:  cfg.Build.FixupTarget,
			CrossCompile: cfg.Build.CrossCompile,
		},
		Reclaimer: &workspace.Reclaimer{
			Logger: logger.With("service", "workspace"),
			Layout: l,
		},
		Aggregator: &history.Aggregator{
			Logger:   logger.With("service", "history"),
			Measurer: measurer,
			Scale:    cfg.Plot.UnitScale,
			Unit:     cfg.Plot.UnitName,
		},
		Renderer: &render.Renderer{
			Logger:   logger.With("service", "render"),
			SavePath: cfg.Plot.SavePath,
			Width:    width,
			Height:   height,
		},
	}

	if cfg.Stages.Enabled(models.StageMeasure) && cfg.Ledger != "" {
		store, err := ledger.NewSQLiteStore(cfg.Ledger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		p.Recorder = store
	}

	if cfg.Stages.Enabled(models.StageMeasure) && cfg.PublishURL != "" {
		publisher, err := publish.Open(ctx, cfg.PublishURL, logger.With("service", "publish"))
		if err != nil {
			return nil, err
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close bucket: %w", closeErr)
			}
		}()
		p.Publisher = publisher
	}

	logger.Info("starting run",
		"versions", len(cfg.Versions),
		"arch", l.Arch.String(),
	)
	result, err := p.Run(ctx, cfg.VersionList())
	if err != nil {
		return nil, err
	}
	logger.Info("run complete", "builds", len(result.Builds), "charts", len(result.Charts))
	return result, nil
}

// Export writes the run with runID, or the latest run when runID is empty,
// from the ledger at ledgerPath to out.
func Export(ctx context.Context, ledgerPath, runID string, format export.Format, out string, logger *slog.Logger) error {
	logger = logging.Ensure(logger).With("component", "config.simple")

	if ledgerPath == "" {
		return errors.New("ledger path is required")
	}
	if out == "" {
		return errors.New("output path is required")
	}
	if _, err := os.Stat(ledgerPath); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	store, err := ledger.NewSQLiteStore(ledgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var run *ledger.Run
	if runID == "" {
		run, err = store.LatestRun(ctx)
	} else {
		run, err = store.GetRun(ctx, runID)
	}
	if err != nil {
		return err
	}

	if err := export.ToFile(out, format, run); err != nil {
		return err
	}
	logger.Info("run exported", "run_id", run.ID, "format", string(format), "out", out, "records", len(run.Records))
	return nil
}

// Serve exposes the ledger at ledgerPath over HTTP until ctx is cancelled.
func Serve(ctx context.Context, ledgerPath, addr string, logger *slog.Logger) error {
	logger = logging.Ensure(logger).With("component", "config.simple")

	if ledgerPath == "" {
		return errors.New("ledger path is required")
	}

	store, err := ledger.NewSQLiteStore(ledgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.Serve(ctx, addr, server.New(store, logger.With("service", "server")))
}
