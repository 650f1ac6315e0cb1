package plugin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// writeScript writes an executable shell script acting as a fake plugin.
func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func newTestLauncher(stdout *bytes.Buffer) *ExecLauncher {
	l := NewExecLauncher(zerolog.Nop())
	l.Stdout = stdout
	l.Stderr = stdout
	return l
}

func TestExecLauncher_Success(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "ok-plugin.sh", `#!/bin/sh
echo "args: $@"
`)

	var out bytes.Buffer
	outcome := newTestLauncher(&out).Launch(context.Background(), Invocation{script, "--url", "http://example.com"})

	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ExitCode != 0 || outcome.Reason != "" {
		t.Errorf("unexpected failure details: %+v", outcome)
	}
	if !strings.Contains(out.String(), "args: --url http://example.com") {
		t.Errorf("child output not forwarded, got %q", out.String())
	}
}

func TestExecLauncher_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "bad-plugin.sh", `#!/bin/sh
echo "boom" >&2
exit 3
`)

	var out bytes.Buffer
	outcome := newTestLauncher(&out).Launch(context.Background(), Invocation{script})

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", outcome.ExitCode)
	}
	if !strings.Contains(outcome.Reason, "exit status 3") {
		t.Errorf("expected reason to mention exit status, got %q", outcome.Reason)
	}
}

func TestExecLauncher_MissingProgram(t *testing.T) {
	var out bytes.Buffer
	outcome := newTestLauncher(&out).Launch(context.Background(), Invocation{filepath.Join(t.TempDir(), "does-not-exist")})

	if outcome.Success {
		t.Fatal("expected failure for missing program")
	}
	if outcome.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", outcome.ExitCode)
	}
	if outcome.Reason == "" {
		t.Error("expected a reason")
	}
}

func TestExecLauncher_EmptyInvocation(t *testing.T) {
	var out bytes.Buffer
	outcome := newTestLauncher(&out).Launch(context.Background(), nil)

	if outcome.Success {
		t.Fatal("expected failure for empty invocation")
	}
}

func TestExecLauncher_Canceled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "slow-plugin.sh", `#!/bin/sh
sleep 10
`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	var out bytes.Buffer
	outcome := newTestLauncher(&out).Launch(ctx, Invocation{script})

	if outcome.Success {
		t.Fatal("expected failure for canceled run")
	}
	if !strings.Contains(outcome.Reason, "interrupted") {
		t.Errorf("expected interrupted reason, got %q", outcome.Reason)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("canceled plugin was not stopped promptly")
	}
}

func TestExecLauncher_WorkingDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	script := writeScript(t, tmpDir, "pwd-plugin.sh", `#!/bin/sh
pwd
`)

	var out bytes.Buffer
	l := newTestLauncher(&out)
	l.Dir = tmpDir
	if outcome := l.Launch(context.Background(), Invocation{script}); !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}

	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out.String()))
	if got != want {
		t.Errorf("working dir = %q, want %q", got, want)
	}
}
