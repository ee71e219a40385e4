// Package runner executes external tools synchronously and turns their exit
// status into a typed result. Stages call Require so the "non-zero exit is
// fatal" policy lives in one place.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/cochaviz/kernelsize/internal/logging"
	"github.com/cochaviz/kernelsize/internal/models"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string

	// Capture collects stdout into Result.Output instead of streaming it.
	Capture bool
}

// Argv returns the program name followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command shell-quoted, suitable for copy and paste.
func (c Command) String() string {
	argv := c.Argv()
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quote(arg)
	}
	return strings.Join(quoted, " ")
}

// Result is the outcome of a command that was started.
type Result struct {
	ExitCode int
	Output   []byte
}

// Success reports whether the command exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner runs commands. An error is returned only when the command could not
// be started; a non-zero exit is reported through Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands as child processes. Output that is not captured
// is streamed to Stdout and Stderr, which default to the process streams.
type ExecRunner struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

var _ Runner = (*ExecRunner)(nil)

// Run starts the command and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, command Command) (Result, error) {
	if command.Name == "" {
		return Result{ExitCode: -1}, errors.New("no command provided")
	}

	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stderr = r.stderr()

	var captured bytes.Buffer
	if command.Capture {
		cmd.Stdout = &captured
	} else {
		cmd.Stdout = r.stdout()
	}

	logging.Ensure(r.Logger).Debug("running command", "command", command.String(), "dir", command.Dir)

	err := cmd.Run()
	result := Result{Output: captured.Bytes()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	result.ExitCode = -1
	return result, fmt.Errorf("start %s: %w", command.Name, err)
}

func (r *ExecRunner) stdout() io.Writer {
	if r.Stdout != nil {
		return r.Stdout
	}
	return os.Stdout
}

func (r *ExecRunner) stderr() io.Writer {
	if r.Stderr != nil {
		return r.Stderr
	}
	return os.Stderr
}

// FailureFunc converts a failed command into the stage's error type.
type FailureFunc func(failure models.CommandFailure) error

// Require runs the command and returns fail's error unless it exits with
// status zero. Interrupts are reported as the context error.
func Require(ctx context.Context, r Runner, command Command, fail FailureFunc) (Result, error) {
	result, err := r.Run(ctx, command)
	if err == nil && result.Success() {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	failure := models.CommandFailure{
		Command:  command.Argv(),
		Dir:      command.Dir,
		ExitCode: result.ExitCode,
		Output:   strings.TrimSpace(string(result.Output)),
		Err:      err,
	}
	return result, fail(failure)
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if strings.IndexFunc(arg, needsQuoting) < 0 {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("@%+=:,./-_", r):
		return false
	default:
		return true
	}
}
