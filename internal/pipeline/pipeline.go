// Package pipeline drives the per-version stages and the history pass that
// follows them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cochaviz/kernelsize/internal/config"
	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/ledger"
	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Fetcher downloads a version's source archive.
type Fetcher interface {
	Fetch(ctx context.Context, version models.Version) error
}

// Expander extracts a version's source archive.
type Expander interface {
	Expand(ctx context.Context, version models.Version) error
}

// Builder configures and builds a version and collects its images.
type Builder interface {
	Build(ctx context.Context, version models.Version) (models.BuildOutput, error)
}

// Reclaimer deletes a version's source tree.
type Reclaimer interface {
	Reclaim(version models.Version) error
}

// Aggregator measures all versions into a history table.
type Aggregator interface {
	Aggregate(ctx context.Context, versions []models.Version) (*history.Table, error)
}

// Renderer charts a history table.
type Renderer interface {
	Render(table *history.Table) ([]string, error)
}

// Recorder appends a run to the ledger.
type Recorder interface {
	RecordRun(ctx context.Context, arch string, table *history.Table) (*ledger.Run, error)
}

// Publisher uploads charts and the table.
type Publisher interface {
	Publish(ctx context.Context, charts []string, table *history.Table) ([]string, error)
}

// Pipeline runs the enabled stages for every version in order, then the
// history pass. Any stage error aborts the whole run. Recorder and Publisher
// are optional.
type Pipeline struct {
	Logger *slog.Logger
	Stages config.Stages
	Arch   string

	Fetcher    Fetcher
	Expander   Expander
	Builder    Builder
	Reclaimer  Reclaimer
	Aggregator Aggregator
	Renderer   Renderer
	Recorder   Recorder
	Publisher  Publisher
}

// Result summarizes what the history pass produced.
type Result struct {
	Builds    []models.BuildOutput
	Table     *history.Table
	Charts    []string
	Run       *ledger.Run
	Published []string
}

// Run processes versions sequentially.
func (p *Pipeline) Run(ctx context.Context, versions []models.Version) (*Result, error) {
	if len(versions) == 0 {
		return nil, errors.New("no versions to process")
	}

	logger := logging.Ensure(p.Logger)
	result := &Result{}

	for _, version := range versions {
		vlog := logging.ForVersion(logger, version.String(), p.Arch)

		steps := []struct {
			stage models.Stage
			run   func() error
		}{
			{models.StageFetch, func() error { return p.Fetcher.Fetch(ctx, version) }},
			{models.StageExtract, func() error { return p.Expander.Expand(ctx, version) }},
			{models.StageBuild, func() error {
				out, err := p.Builder.Build(ctx, version)
				if err == nil {
					result.Builds = append(result.Builds, out)
				}
				return err
			}},
			{models.StageReclaim, func() error { return p.Reclaimer.Reclaim(version) }},
		}

		for _, step := range steps {
			if !p.Stages.Enabled(step.stage) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := runStage(vlog, step.stage, step.run); err != nil {
				return nil, err
			}
		}
	}

	if !p.Stages.Enabled(models.StageMeasure) {
		return result, nil
	}
	if err := p.history(ctx, logger, versions, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) history(ctx context.Context, logger *slog.Logger, versions []models.Version, result *Result) error {
	return runStage(logger, models.StageMeasure, func() error {
		table, err := p.Aggregator.Aggregate(ctx, versions)
		if err != nil {
			return err
		}
		result.Table = table

		charts, err := p.Renderer.Render(table)
		if err != nil {
			return fmt.Errorf("render history: %w", err)
		}
		result.Charts = charts

		if p.Recorder != nil {
			run, err := p.Recorder.RecordRun(ctx, p.Arch, table)
			if err != nil {
				return fmt.Errorf("record run: %w", err)
			}
			result.Run = run
			logger.Info("run recorded", "run_id", run.ID)
		}

		if p.Publisher != nil {
			keys, err := p.Publisher.Publish(ctx, charts, table)
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			result.Published = keys
		}
		return nil
	})
}

func runStage(logger *slog.Logger, stage models.Stage, run func() error) error {
	stageLog := logging.ForStage(logger, string(stage))
	stageLog.Debug("stage status", "status", models.StageStatusRunning)

	start := time.Now()
	if err := run(); err != nil {
		stageLog.Debug("stage status", "status", models.StageStatusFailed, "error", err)
		return err
	}
	stageLog.Debug("stage status", "status", models.StageStatusSucceeded, "duration", time.Since(start))
	return nil
}
