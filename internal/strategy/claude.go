package strategy

import (
	"regexp"
	"time"

	"github.com/ninjastack/ninja/internal/parse"
)

// Claude drives the claude CLI in print mode. Context files are not
// passed as arguments; they are referenced inside the prompt instead.
type Claude struct {
	Binary string // defaults to "claude"
}

var claudeTimeouts = map[Mode]time.Duration{
	ModeQuick:      5 * time.Minute,
	ModeSequential: 15 * time.Minute,
	ModeParallel:   15 * time.Minute,
}

var claudePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:Wrote|Updated)\s+` + "`?" + `([\w./~-]+)` + "`?"),
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Capabilities() Capabilities {
	return Capabilities{ModelSelect: true}
}

func (c *Claude) BuildCommand(req Request) (CommandSpec, error) {
	if err := validateRequest(req); err != nil {
		return CommandSpec{}, err
	}
	bin := c.Binary
	if bin == "" {
		bin = "claude"
	}
	argv := []string{bin, "--print", req.Prompt}
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	return CommandSpec{
		Argv:       argv,
		WorkingDir: req.RepoRoot,
		Timeout:    timeoutFor("claude", req.Mode, claudeTimeouts),
		Metadata:   map[string]string{"cli": "claude", "mode": string(req.Mode)},
	}, nil
}

func (c *Claude) ParseOutput(stdout, stderr string, exitCode int, repoRoot string, start time.Time) parse.Outcome {
	return parse.Run(parse.Spec{CLIName: "claude", PathPatterns: claudePathPatterns}, stdout, stderr, exitCode, repoRoot, start)
}
