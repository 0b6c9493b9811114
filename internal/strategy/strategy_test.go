package strategy

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestAiderBuildCommand(t *testing.T) {
	a := &Aider{}
	spec, err := a.BuildCommand(Request{
		Mode:         ModeQuick,
		Prompt:       "add a greet function",
		Model:        "sonnet",
		ContextPaths: []string{"src/main.py"},
		RepoRoot:     "/repo",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"aider", "--message", "add a greet function", "--yes", "--no-auto-commits", "--model", "sonnet", "src/main.py"}
	if !slices.Equal(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
	if spec.WorkingDir != "/repo" {
		t.Errorf("workdir = %q", spec.WorkingDir)
	}
	if spec.Timeout != 5*time.Minute {
		t.Errorf("timeout = %v", spec.Timeout)
	}
}

func TestAiderSequentialTimeout(t *testing.T) {
	a := &Aider{}
	spec, err := a.BuildCommand(Request{Mode: ModeSequential, Prompt: "p", RepoRoot: "/r"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if spec.Timeout != 15*time.Minute {
		t.Errorf("timeout = %v", spec.Timeout)
	}
}

func TestTimeoutEnvOverride(t *testing.T) {
	t.Setenv("NINJA_AIDER_TIMEOUT", "42")
	a := &Aider{}
	spec, err := a.BuildCommand(Request{Mode: ModeQuick, Prompt: "p", RepoRoot: "/r"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if spec.Timeout != 42*time.Second {
		t.Errorf("timeout = %v, want 42s", spec.Timeout)
	}
}

func TestTimeoutEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("NINJA_AIDER_TIMEOUT", "soon")
	a := &Aider{}
	spec, _ := a.BuildCommand(Request{Mode: ModeQuick, Prompt: "p", RepoRoot: "/r"})
	if spec.Timeout != 5*time.Minute {
		t.Errorf("timeout = %v, want default", spec.Timeout)
	}
}

func TestOpenCodeBuildCommand(t *testing.T) {
	o := &OpenCode{}
	spec, err := o.BuildCommand(Request{
		Mode:         ModeSequential,
		Prompt:       "refactor the parser",
		Model:        "sonnet",
		SessionID:    "sess-42",
		ContextPaths: []string{"a.go", "b.go"},
		RepoRoot:     "/repo",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{
		"opencode", "run",
		"--model", "anthropic/claude-sonnet-4-0",
		"--continue", "sess-42",
		"--file", "a.go", "--file", "b.go",
		"refactor the parser",
	}
	if !slices.Equal(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestQualifyModelPassthrough(t *testing.T) {
	if got := qualifyModel("openrouter/deepseek-v3"); got != "openrouter/deepseek-v3" {
		t.Errorf("qualified model rewritten: %q", got)
	}
	if got := qualifyModel("haiku"); got != "anthropic/claude-haiku-4-0" {
		t.Errorf("alias not qualified: %q", got)
	}
	// Bare names outside the alias table still get a provider tag.
	if got := qualifyModel("claude-sonnet-4-5"); got != "anthropic/claude-sonnet-4-5" {
		t.Errorf("bare model not prefixed: %q", got)
	}
}

func TestGeminiBuildCommand(t *testing.T) {
	g := &Gemini{}
	spec, err := g.BuildCommand(Request{Mode: ModeQuick, Prompt: "explain", ContextPaths: []string{"x.md"}, RepoRoot: "/r"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"gemini", "--file", "x.md", "--prompt", "explain"}
	if !slices.Equal(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestClaudeBuildCommand(t *testing.T) {
	c := &Claude{}
	spec, err := c.BuildCommand(Request{Mode: ModeQuick, Prompt: "fix the bug", Model: "opus", RepoRoot: "/r"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"claude", "--print", "fix the bug", "--model", "opus"}
	if !slices.Equal(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestBuildCommandRejectsEmptyPrompt(t *testing.T) {
	for _, s := range []Strategy{&Aider{}, &OpenCode{}, &Gemini{}, &Claude{}} {
		if _, err := s.BuildCommand(Request{Mode: ModeQuick, Prompt: "  ", RepoRoot: "/r"}); err == nil {
			t.Errorf("%s accepted empty prompt", s.Name())
		}
	}
}

func TestRegistryGetAndNames(t *testing.T) {
	r := NewRegistry()
	want := []string{"aider", "claude", "gemini", "opencode"}
	if got := r.Names(); !slices.Equal(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	s, err := r.Get("opencode")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !s.Capabilities().MultiAgent {
		t.Error("opencode should report multi-agent capability")
	}
	if _, err := r.Get("codex"); err == nil {
		t.Error("unknown operator accepted")
	}
}

func TestRegistryAvailable(t *testing.T) {
	r := NewRegistry()
	r.LookPath = func(bin string) (string, error) {
		if bin == "aider" {
			return "/usr/bin/aider", nil
		}
		return "", errors.New("not found")
	}
	if !r.Available("aider") {
		t.Error("aider should be available")
	}
	if r.Available("gemini") {
		t.Error("gemini should be unavailable")
	}
	if r.Available("codex") {
		t.Error("unregistered operator reported available")
	}
}

func TestCapabilitiesMatrix(t *testing.T) {
	r := NewRegistry()
	for name, want := range map[string]Capabilities{
		"aider":    {FileArgs: true, ModelSelect: true},
		"opencode": {Sessions: true, MultiAgent: true, FileArgs: true, ModelSelect: true},
		"gemini":   {FileArgs: true, ModelSelect: true},
		"claude":   {ModelSelect: true},
	} {
		s, err := r.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if got := s.Capabilities(); got != want {
			t.Errorf("%s capabilities = %+v, want %+v", name, got, want)
		}
	}
}
