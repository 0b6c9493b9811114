package strategy

import (
	"regexp"
	"strings"
	"time"

	"github.com/ninjastack/ninja/internal/parse"
)

// OpenCode drives the opencode CLI. It is the only operator in the
// family with sessions and multi-agent coordination, so the router
// prefers it whenever a task needs either.
type OpenCode struct {
	Binary string // defaults to "opencode"
}

var opencodeTimeouts = map[Mode]time.Duration{
	ModeQuick:      5 * time.Minute,
	ModeSequential: 15 * time.Minute,
	ModeParallel:   20 * time.Minute,
}

var opencodePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwrote\s+` + "`?" + `([\w./~-]+)` + "`?"),
	regexp.MustCompile(`(?i)\bedited\s+` + "`?" + `([\w./~-]+)` + "`?"),
}

func (o *OpenCode) Name() string { return "opencode" }

func (o *OpenCode) Capabilities() Capabilities {
	return Capabilities{Sessions: true, MultiAgent: true, FileArgs: true, ModelSelect: true}
}

// BuildCommand assembles `opencode run`. Models must carry a provider
// prefix (provider/model); bare names get the default provider tag.
func (o *OpenCode) BuildCommand(req Request) (CommandSpec, error) {
	if err := validateRequest(req); err != nil {
		return CommandSpec{}, err
	}
	bin := o.Binary
	if bin == "" {
		bin = "opencode"
	}
	argv := []string{bin, "run"}
	if req.Model != "" {
		argv = append(argv, "--model", qualifyModel(req.Model))
	}
	if req.SessionID != "" {
		argv = append(argv, "--continue", req.SessionID)
	}
	for _, p := range req.ContextPaths {
		argv = append(argv, "--file", p)
	}
	argv = append(argv, req.Prompt)
	return CommandSpec{
		Argv:       argv,
		WorkingDir: req.RepoRoot,
		Timeout:    timeoutFor("opencode", req.Mode, opencodeTimeouts),
		Metadata:   map[string]string{"cli": "opencode", "mode": string(req.Mode)},
	}, nil
}

func (o *OpenCode) ParseOutput(stdout, stderr string, exitCode int, repoRoot string, start time.Time) parse.Outcome {
	return parse.Run(parse.Spec{CLIName: "opencode", PathPatterns: opencodePathPatterns}, stdout, stderr, exitCode, repoRoot, start)
}

// qualifyModel maps the short model aliases the config document uses to
// provider-qualified identifiers. Already-qualified names pass through;
// any other bare name gets the default provider prefix.
func qualifyModel(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	switch model {
	case "sonnet":
		return "anthropic/claude-sonnet-4-0"
	case "haiku":
		return "anthropic/claude-haiku-4-0"
	case "opus":
		return "anthropic/claude-opus-4-0"
	}
	return "anthropic/" + model
}
