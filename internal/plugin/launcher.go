package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Launcher runs one invocation to completion and classifies its exit.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) Outcome
}

// ExecLauncher runs invocations as child processes. The child inherits the
// configured stdout and stderr; no timeout is imposed, only ctx can stop it.
type ExecLauncher struct {
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	logger zerolog.Logger
}

// NewExecLauncher creates an ExecLauncher writing child output to the launcher's own streams.
func NewExecLauncher(logger zerolog.Logger) *ExecLauncher {
	return &ExecLauncher{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger,
	}
}

// Launch starts inv, blocks until it exits and never returns an error:
// every failure is reported as a failed Outcome and logged.
func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation) Outcome {
	if len(inv) == 0 {
		return l.fail(inv, Failed(-1, "empty invocation"))
	}

	cmd := exec.CommandContext(ctx, inv[0], inv[1:]...)
	cmd.Dir = l.Dir
	if l.Env != nil {
		cmd.Env = l.Env
	}
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}

	l.logger.Debug().Strs("argv", inv).Msg("Starting plugin process.")

	err := cmd.Run()
	if err == nil {
		return Succeeded()
	}

	if ctx.Err() != nil {
		return l.fail(inv, Failed(exitCode(err), fmt.Sprintf("interrupted: %v", ctx.Err())))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return l.fail(inv, Failed(exitErr.ExitCode(), exitErr.Error()))
	}
	return l.fail(inv, Failed(-1, err.Error()))
}

func (l *ExecLauncher) fail(inv Invocation, out Outcome) Outcome {
	l.logger.Error().
		Strs("argv", inv).
		Int("exit_code", out.ExitCode).
		Str("reason", out.Reason).
		Msg("Plugin process failed.")
	return out
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
