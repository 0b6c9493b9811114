// Package strategy encapsulates per-CLI knowledge: how to assemble a
// command line for a task, what the CLI can and cannot do, and how to
// read its output. Everything above this package speaks one vocabulary
// regardless of which operator CLI is installed.
package strategy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ninjastack/ninja/internal/parse"
)

// Mode selects the invocation shape.
type Mode string

const (
	ModeQuick      Mode = "quick"
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Capabilities declares what a CLI supports. The router and the executor
// consult this instead of switching on CLI names.
type Capabilities struct {
	Sessions    bool // can resume a prior conversation by id
	MultiAgent  bool // can coordinate several agents in one run
	FileArgs    bool // accepts explicit context-file arguments
	ModelSelect bool // accepts a model flag
}

// Request carries everything a strategy needs to build one invocation.
type Request struct {
	Mode         Mode
	Prompt       string
	Model        string
	ContextPaths []string // repo-relative
	SessionID    string   // only meaningful when Capabilities.Sessions
	RepoRoot     string
}

// CommandSpec is a fully assembled invocation, ready for the driver.
type CommandSpec struct {
	Argv       []string
	Env        []string // appended to the inherited environment
	WorkingDir string
	Timeout    time.Duration
	Metadata   map[string]string
}

// Strategy is the per-CLI adapter.
type Strategy interface {
	Name() string
	Capabilities() Capabilities
	BuildCommand(req Request) (CommandSpec, error)
	ParseOutput(stdout, stderr string, exitCode int, repoRoot string, start time.Time) parse.Outcome
}

// timeoutFor resolves the invocation timeout: the NINJA_<CLI>_TIMEOUT
// environment variable (seconds) wins over the per-mode default.
func timeoutFor(cliName string, mode Mode, defaults map[Mode]time.Duration) time.Duration {
	key := "NINJA_" + strings.ToUpper(cliName) + "_TIMEOUT"
	if raw := os.Getenv(key); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if d, ok := defaults[mode]; ok {
		return d
	}
	return defaults[ModeQuick]
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("empty prompt")
	}
	if req.RepoRoot == "" {
		return fmt.Errorf("no repo root")
	}
	return nil
}
