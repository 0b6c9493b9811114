package prompt

import (
	"strings"
	"testing"

	"github.com/ninjastack/ninja/internal/plan"
)

var testSteps = []plan.Step{
	{ID: "models", Title: "user model", Task: "create src/models/user.py",
		AllowedGlobs: []string{"src/models/**"}},
	{ID: "routes", Title: "user routes", Task: "create src/routes/users.py",
		ContextPaths: []string{"src/models/user.py"}},
}

func TestQuickContainsAllSections(t *testing.T) {
	out := Quick("add a greet() function", "/tmp/r1",
		[]string{"src/main.py"}, []string{"src/**"}, []string{"src/generated/**"})

	for _, want := range []string{
		"add a greet() function",
		"src/main.py",
		"Only write files matching: src/**",
		"Never write files matching: src/generated/**",
		"Repository root: /tmp/r1",
		"one path per line",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("quick prompt missing %q", want)
		}
	}
}

func TestQuickIsDeterministic(t *testing.T) {
	a := Quick("task", "/r", []string{"a.py", "b.py"}, []string{"**"}, nil)
	b := Quick("task", "/r", []string{"a.py", "b.py"}, []string{"**"}, nil)
	if a != b {
		t.Error("quick prompt not byte-identical for identical input")
	}
}

func TestSequentialOrdersStepsAndDemandsJSON(t *testing.T) {
	out := Sequential("/repo", testSteps)

	first := strings.Index(out, "id=models")
	second := strings.Index(out, "id=routes")
	if first < 0 || second < 0 || first > second {
		t.Errorf("steps out of order: models@%d routes@%d", first, second)
	}
	if !strings.Contains(out, "```json") {
		t.Error("missing fenced json contract")
	}
	if !strings.Contains(out, "strictly in the order given") {
		t.Error("missing ordering instruction")
	}
	if !strings.Contains(out, "overall_status") {
		t.Error("missing result shape")
	}
}

func TestParallelDeclaresFanout(t *testing.T) {
	out := Parallel("/repo", testSteps, 2)

	if !strings.Contains(out, "up to 2 of them concurrently") {
		t.Error("missing fan-out declaration")
	}
	if !strings.Contains(out, "independent") {
		t.Error("missing independence declaration")
	}
	if !strings.Contains(out, "```json") {
		t.Error("missing fenced json contract")
	}
}

func TestSequentialIsDeterministic(t *testing.T) {
	a := Sequential("/repo", testSteps)
	b := Sequential("/repo", testSteps)
	if a != b {
		t.Error("sequential prompt not byte-identical for identical input")
	}
}
