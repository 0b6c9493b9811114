// Package driver spawns operator CLI processes and enforces their
// timeouts. It knows nothing about any CLI's semantics; it runs an
// argv, collects both streams, and tears down the whole process group
// when told to.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ninjastack/ninja/internal/strategy"
)

// RawOutcome is everything the parser needs from one invocation.
type RawOutcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	WallTime time.Duration
	TimedOut bool
}

// ErrBinaryNotFound reports that the argv's program is not on PATH.
var ErrBinaryNotFound = errors.New("operator binary not found")

// killGrace is how long a process group gets between SIGTERM and
// SIGKILL.
const killGrace = 5 * time.Second

// Driver runs command specs. The zero value is usable.
type Driver struct {
	// ExtraEnv is appended to every invocation's environment, after the
	// spec's own entries.
	ExtraEnv []string
}

// Run executes spec and blocks until the process exits, the spec
// timeout elapses, or ctx is cancelled. Output is buffered in full;
// stream EOF is never treated as completion, only process exit is.
func (d *Driver) Run(ctx context.Context, spec strategy.CommandSpec) (RawOutcome, error) {
	if len(spec.Argv) == 0 {
		return RawOutcome{}, fmt.Errorf("empty argv")
	}
	if _, err := exec.LookPath(spec.Argv[0]); err != nil {
		return RawOutcome{}, fmt.Errorf("%w: %s", ErrBinaryNotFound, spec.Argv[0])
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = append(append(os.Environ(), spec.Env...), d.ExtraEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawOutcome{}, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case err := <-done:
		return outcome(&stdout, &stderr, err, start, false), nil
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
	}

	// Timeout or cancel: terminate the whole group, then reap.
	terminateGroup(cmd.Process.Pid, done)
	err := <-done
	return outcome(&stdout, &stderr, err, start, timedOut), nil
}

// terminateGroup sends SIGTERM to the process group, waits up to
// killGrace for the reaper goroutine to report exit, then SIGKILLs.
func terminateGroup(pid int, done chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case err := <-done:
		// Already reaped; put it back for the caller.
		done <- err
	case <-time.After(killGrace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func outcome(stdout, stderr *bytes.Buffer, waitErr error, start time.Time, timedOut bool) RawOutcome {
	out := RawOutcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		WallTime: time.Since(start),
		TimedOut: timedOut,
	}
	switch {
	case waitErr == nil:
		out.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
		}
	}
	return out
}
