// Package prompt renders the instruction strings handed to the operator
// CLI. All builders are pure: same inputs, byte-identical output, no
// filesystem access. Context paths are carried as strings only.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ninjastack/ninja/internal/plan"
)

// resultContract is the output contract appended to plan prompts. The
// fenced json block is what the parser extracts.
const resultContract = "When every step is finished, emit exactly one JSON object inside a " +
	"```json fenced block with this shape:\n" +
	"```json\n" +
	"{\n" +
	"  \"overall_status\": \"success|partial|failed\",\n" +
	"  \"steps\": [{\"id\": \"...\", \"status\": \"ok|fail|skipped\", \"summary\": \"...\", " +
	"\"files_touched\": [\"relative/path\"], \"error_message\": \"...\"}],\n" +
	"  \"files_modified\": [\"relative/path\"]\n" +
	"}\n" +
	"```\n"

// Quick renders the single-step task prompt.
func Quick(task, repoRoot string, contextPaths, allowedGlobs, denyGlobs []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(task))
	b.WriteString("\n")

	if len(contextPaths) > 0 {
		b.WriteString("\nContext files:\n")
		for _, p := range contextPaths {
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	writeGlobs(&b, allowedGlobs, denyGlobs)
	fmt.Fprintf(&b, "\nRepository root: %s\n", repoRoot)
	b.WriteString("\nWhen done, emit a short summary of what you did, then one path per line for every file you touched.\n")
	return b.String()
}

// Sequential renders a multi-step plan prompt. The CLI executes the steps
// in order within one session, preserving context between steps.
func Sequential(repoRoot string, steps []plan.Step) string {
	var b strings.Builder
	b.WriteString("Execute the following plan.\n")
	fmt.Fprintf(&b, "Repository root: %s\n\n", repoRoot)

	writeSteps(&b, steps)

	b.WriteString("Execute the steps strictly in the order given. Carry context forward: " +
		"later steps may depend on files created by earlier ones. " +
		"If a step fails, mark it fail, skip the remaining steps, and report.\n\n")
	b.WriteString(resultContract)
	return b.String()
}

// Parallel renders an independent-steps plan prompt with a declared
// fan-out limit.
func Parallel(repoRoot string, steps []plan.Step, fanout int) string {
	var b strings.Builder
	b.WriteString("Execute the following plan.\n")
	fmt.Fprintf(&b, "Repository root: %s\n\n", repoRoot)

	writeSteps(&b, steps)

	fmt.Fprintf(&b, "The steps are independent of each other. You may execute up to %d of them concurrently. "+
		"No step may rely on the output of another.\n\n", fanout)
	b.WriteString(resultContract)
	return b.String()
}

func writeSteps(b *strings.Builder, steps []plan.Step) {
	for i, st := range steps {
		fmt.Fprintf(b, "Step %d (id=%s): %s\n", i+1, st.ID, st.Title)
		b.WriteString(strings.TrimSpace(st.Task))
		b.WriteString("\n")
		if len(st.ContextPaths) > 0 {
			b.WriteString("Context files:\n")
			for _, p := range st.ContextPaths {
				b.WriteString("  ")
				b.WriteString(p)
				b.WriteString("\n")
			}
		}
		writeGlobs(b, st.AllowedGlobs, st.DenyGlobs)
		b.WriteString("\n")
	}
}

func writeGlobs(b *strings.Builder, allowed, deny []string) {
	if len(allowed) > 0 {
		fmt.Fprintf(b, "Only write files matching: %s\n", strings.Join(allowed, ", "))
	}
	if len(deny) > 0 {
		fmt.Fprintf(b, "Never write files matching: %s\n", strings.Join(deny, ", "))
	}
}
