package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cochaviz/kernelsize/internal/models"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{Stderr: &bytes.Buffer{}}
	result, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello"}, Capture: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success() {
		t.Fatalf("Run() exit code = %d, want 0", result.ExitCode)
	}
	if got := strings.TrimSpace(string(result.Output)); got != "hello" {
		t.Fatalf("Run() output = %q, want %q", got, "hello")
	}
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer
	r := &ExecRunner{Stdout: &stdout, Stderr: &bytes.Buffer{}}
	result, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo streamed; exit 3"}, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("Run() exit code = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(stdout.String(), "streamed") {
		t.Fatalf("stdout = %q, want streamed output", stdout.String())
	}
}

func TestExecRunnerMissingProgram(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}
	result, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-program-xyz"})
	if err == nil {
		t.Fatal("Run() error = nil, want non-nil")
	}
	if result.ExitCode != -1 {
		t.Fatalf("Run() exit code = %d, want -1", result.ExitCode)
	}
}

type fixedRunner struct {
	result Result
	err    error
}

func (f fixedRunner) Run(context.Context, Command) (Result, error) {
	return f.result, f.err
}

func TestRequireMapsFailure(t *testing.T) {
	t.Parallel()

	cmd := Command{Name: "make", Args: []string{"ARCH=x86", "allnoconfig"}, Dir: "/src"}
	_, err := Require(context.Background(), fixedRunner{result: Result{ExitCode: 2}}, cmd, func(f models.CommandFailure) error {
		return &models.ConfigurationError{CommandFailure: f}
	})

	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Require() error = %v, want *models.ConfigurationError", err)
	}
	if cfgErr.ExitCode != 2 {
		t.Fatalf("exit code = %d, want 2", cfgErr.ExitCode)
	}
	if !strings.Contains(err.Error(), "make ARCH=x86 allnoconfig") {
		t.Fatalf("error %q does not name the command", err)
	}
}

func TestRequirePassesSuccess(t *testing.T) {
	t.Parallel()

	result, err := Require(context.Background(), fixedRunner{result: Result{Output: []byte("ok")}}, Command{Name: "true"}, func(models.CommandFailure) error {
		t.Fatal("failure func called for successful command")
		return nil
	})
	if err != nil {
		t.Fatalf("Require() error = %v", err)
	}
	if string(result.Output) != "ok" {
		t.Fatalf("Require() output = %q, want ok", result.Output)
	}
}

func TestCommandString(t *testing.T) {
	t.Parallel()

	cmd := Command{Name: "make", Args: []string{"-j", "KCONFIG_ALLCONFIG=/tmp/my config", "it's"}}
	want := `make -j 'KCONFIG_ALLCONFIG=/tmp/my config' 'it'"'"'s'`
	if got := cmd.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
