package models

import (
	"fmt"
	"strings"
)

// A TransferError reports that the source mirror did not deliver an archive.
type TransferError struct {
	URL        string
	StatusCode int
	Message    string
	Err        error
}

// Error returns the error message.
func (e *TransferError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transfer of %s failed: HTTP %d %s", e.URL, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("transfer of %s failed: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("transfer of %s failed: %s", e.URL, e.Message)
	}
}

func (e *TransferError) Unwrap() error { return e.Err }

// A MissingInputError reports that an input produced by an earlier stage is
// absent. Stage is the stage that should have produced it.
type MissingInputError struct {
	Path  string
	What  string
	Stage Stage
}

// Error returns the error message.
func (e *MissingInputError) Error() string {
	msg := fmt.Sprintf("missing %s: %s", e.What, e.Path)
	if flag := e.Stage.StageFlag(); flag != "" {
		msg += fmt.Sprintf(". Did you forget %s?", flag)
	}
	return msg
}

// CommandFailure carries the details of an external command that exited
// unsuccessfully.
type CommandFailure struct {
	Command  []string
	Dir      string
	ExitCode int
	Output   string
	Err      error
}

func (f CommandFailure) describe(action string) string {
	msg := fmt.Sprintf("failed %s: %s exited with status %d", action, strings.Join(f.Command, " "), f.ExitCode)
	if f.Dir != "" {
		msg += fmt.Sprintf(" (in %s)", f.Dir)
	}
	if f.Err != nil {
		msg += fmt.Sprintf(": %v", f.Err)
	}
	return msg
}

// A ConfigurationError reports a non-zero exit while configuring a tree.
type ConfigurationError struct {
	CommandFailure
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	return e.describe("configuring kernel for build")
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// A BuildError reports a non-zero exit from the build tool, or a size tool
// that could not be run.
type BuildError struct {
	CommandFailure
	Action string
}

// Error returns the error message.
func (e *BuildError) Error() string {
	action := e.Action
	if action == "" {
		action = "building kernel"
	}
	return e.describe(action)
}

func (e *BuildError) Unwrap() error { return e.Err }

// An ArtifactMissingError reports an expected output file that does not exist
// even though the tool producing it reported success.
type ArtifactMissingError struct {
	Path    string
	Version Version
}

// Error returns the error message.
func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("missing image for %s: %s. Did you forget %s?", e.Version, e.Path, StageBuild.StageFlag())
}

// A ParseError reports size tool output that lacks a required column.
type ParseError struct {
	Column string
	Input  string
	Reason string
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("parse size output: %s: %q", e.Reason, e.Input)
	}
	return fmt.Sprintf("parse size output: column %q %s: %q", e.Column, e.Reason, e.Input)
}
