package models

// Stage names one step of the per-version pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageBuild   Stage = "build"
	StageReclaim Stage = "reclaim"
	StageMeasure Stage = "measure"
)

// StageStatus captures the lifecycle of a stage for one version.
type StageStatus string

// Supported stage statuses.
const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
)

// StageFlag returns the command-line flag that enables the stage. Error
// messages use it to tell the operator which step was skipped.
func (s Stage) StageFlag() string {
	switch s {
	case StageFetch:
		return "--fetch-sources"
	case StageExtract:
		return "--extract-sources"
	case StageBuild:
		return "--build-images"
	case StageReclaim:
		return "--delete-sources"
	case StageMeasure:
		return "--plot-history"
	default:
		return ""
	}
}

// BuildOutput lists the images copied into a version's output directory.
type BuildOutput struct {
	Version          Version
	OutputDir        string
	ELFImage         string
	CompressedImages []string
}
