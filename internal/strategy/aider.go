package strategy

import (
	"regexp"
	"time"

	"github.com/ninjastack/ninja/internal/parse"
)

// Aider drives the aider CLI in one-shot message mode. Aider prints
// "Applied edit to <path>" for every file it writes, which makes its
// output the easiest of the family to verify.
type Aider struct {
	Binary string // defaults to "aider"
}

var aiderTimeouts = map[Mode]time.Duration{
	ModeQuick:      5 * time.Minute,
	ModeSequential: 15 * time.Minute,
	ModeParallel:   20 * time.Minute,
}

var aiderPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Applied edit to (\S+)`),
	regexp.MustCompile(`Added (\S+) to the chat`),
	regexp.MustCompile(`Created (\S+)`),
}

func (a *Aider) Name() string { return "aider" }

func (a *Aider) Capabilities() Capabilities {
	return Capabilities{FileArgs: true, ModelSelect: true}
}

func (a *Aider) BuildCommand(req Request) (CommandSpec, error) {
	if err := validateRequest(req); err != nil {
		return CommandSpec{}, err
	}
	bin := a.Binary
	if bin == "" {
		bin = "aider"
	}
	argv := []string{bin, "--message", req.Prompt, "--yes", "--no-auto-commits"}
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	argv = append(argv, req.ContextPaths...)
	return CommandSpec{
		Argv:       argv,
		WorkingDir: req.RepoRoot,
		Timeout:    timeoutFor("aider", req.Mode, aiderTimeouts),
		Metadata:   map[string]string{"cli": "aider", "mode": string(req.Mode)},
	}, nil
}

func (a *Aider) ParseOutput(stdout, stderr string, exitCode int, repoRoot string, start time.Time) parse.Outcome {
	return parse.Run(parse.Spec{CLIName: "aider", PathPatterns: aiderPathPatterns}, stdout, stderr, exitCode, repoRoot, start)
}
