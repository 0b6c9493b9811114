package strategy

import (
	"regexp"
	"time"

	"github.com/ninjastack/ninja/internal/parse"
)

// Gemini drives the gemini CLI in non-interactive prompt mode.
type Gemini struct {
	Binary string // defaults to "gemini"
}

var geminiTimeouts = map[Mode]time.Duration{
	ModeQuick:      5 * time.Minute,
	ModeSequential: 15 * time.Minute,
	ModeParallel:   15 * time.Minute,
}

var geminiPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsaved\s+` + "`?" + `([\w./~-]+)` + "`?"),
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Capabilities() Capabilities {
	return Capabilities{FileArgs: true, ModelSelect: true}
}

func (g *Gemini) BuildCommand(req Request) (CommandSpec, error) {
	if err := validateRequest(req); err != nil {
		return CommandSpec{}, err
	}
	bin := g.Binary
	if bin == "" {
		bin = "gemini"
	}
	argv := []string{bin}
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	for _, p := range req.ContextPaths {
		argv = append(argv, "--file", p)
	}
	argv = append(argv, "--prompt", req.Prompt)
	return CommandSpec{
		Argv:       argv,
		WorkingDir: req.RepoRoot,
		Timeout:    timeoutFor("gemini", req.Mode, geminiTimeouts),
		Metadata:   map[string]string{"cli": "gemini", "mode": string(req.Mode)},
	}, nil
}

func (g *Gemini) ParseOutput(stdout, stderr string, exitCode int, repoRoot string, start time.Time) parse.Outcome {
	return parse.Run(parse.Spec{CLIName: "gemini", PathPatterns: geminiPathPatterns}, stdout, stderr, exitCode, repoRoot, start)
}
