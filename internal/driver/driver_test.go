package driver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ninjastack/ninja/internal/strategy"
)

func TestRunCapturesBothStreams(t *testing.T) {
	d := &Driver{}
	out, err := d.Run(context.Background(), strategy.CommandSpec{
		Argv:    []string{"sh", "-c", "echo stdout-line; echo stderr-line >&2"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit = %d", out.ExitCode)
	}
	if !strings.Contains(out.Stdout, "stdout-line") {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if !strings.Contains(out.Stderr, "stderr-line") {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if out.TimedOut {
		t.Error("timed_out on a fast command")
	}
}

func TestRunReportsExitCode(t *testing.T) {
	d := &Driver{}
	out, err := d.Run(context.Background(), strategy.CommandSpec{
		Argv:    []string{"sh", "-c", "exit 3"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", out.ExitCode)
	}
}

func TestRunTimeoutKillsGroup(t *testing.T) {
	d := &Driver{}
	start := time.Now()
	out, err := d.Run(context.Background(), strategy.CommandSpec{
		Argv:    []string{"sh", "-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.TimedOut {
		t.Error("timed_out not set")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("teardown took %v, child not killed", elapsed)
	}
	if out.ExitCode == 0 {
		t.Error("killed process reported exit 0")
	}
}

func TestRunContextCancel(t *testing.T) {
	d := &Driver{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	out, err := d.Run(ctx, strategy.CommandSpec{
		Argv:    []string{"sh", "-c", "sleep 30"},
		Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Cancel is not a timeout.
	if out.TimedOut {
		t.Error("cancel reported as timeout")
	}
	if out.ExitCode == 0 {
		t.Error("cancelled process reported exit 0")
	}
}

func TestRunBinaryNotFound(t *testing.T) {
	d := &Driver{}
	_, err := d.Run(context.Background(), strategy.CommandSpec{
		Argv: []string{"no-such-operator-cli-xyz"},
	})
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Errorf("err = %v, want ErrBinaryNotFound", err)
	}
}

func TestRunWorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	d := &Driver{ExtraEnv: []string{"NINJA_TEST_MARK=hello"}}
	out, err := d.Run(context.Background(), strategy.CommandSpec{
		Argv:       []string{"sh", "-c", "pwd; printf %s \"$NINJA_TEST_MARK\""},
		WorkingDir: dir,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.Stdout, "hello") {
		t.Errorf("env not propagated: %q", out.Stdout)
	}
}
