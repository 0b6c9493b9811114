// Package plan defines the request/response data model shared by the
// executor, the parser, and the MCP tool layer: plan steps, step results,
// and the closed status and error-kind enums. Unknown enum variants are
// rejected at the boundary, never normalized silently.
package plan

import (
	"encoding/json"
	"fmt"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFail    StepStatus = "fail"
	StepSkipped StepStatus = "skipped"
)

// UnmarshalJSON rejects unknown variants.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch StepStatus(raw) {
	case StepOK, StepFail, StepSkipped:
		*s = StepStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown step status %q", raw)
}

// OverallStatus summarizes a whole plan run.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallPartial OverallStatus = "partial"
	OverallFailed  OverallStatus = "failed"
)

// UnmarshalJSON rejects unknown variants.
func (s *OverallStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch OverallStatus(raw) {
	case OverallSuccess, OverallPartial, OverallFailed:
		*s = OverallStatus(raw)
		return nil
	}
	return fmt.Errorf("unknown overall status %q", raw)
}

// ErrorKind is the stable short string carried in failed responses.
type ErrorKind string

const (
	ErrInvalidRequest      ErrorKind = "invalid_request"
	ErrAuth                ErrorKind = "auth_error"
	ErrInsufficientCredits ErrorKind = "insufficient_credits"
	ErrCLINotFound         ErrorKind = "cli_not_found"
	ErrTimeout             ErrorKind = "timeout"
	ErrParseFailure        ErrorKind = "parse_failure"
	ErrInternal            ErrorKind = "internal_error"
)

// Step is one immutable unit of work in a plan.
type Step struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Task         string   `json:"task"`
	ContextPaths []string `json:"context_paths,omitempty"`
	AllowedGlobs []string `json:"allowed_globs,omitempty"`
	DenyGlobs    []string `json:"deny_globs,omitempty"`
}

// ValidateSteps enforces the plan invariants: at least one step, unique
// IDs, title and task present.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	seen := make(map[string]bool, len(steps))
	for i, st := range steps {
		if st.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate step id %q", st.ID)
		}
		seen[st.ID] = true
		if st.Title == "" {
			return fmt.Errorf("step %q has no title", st.ID)
		}
		if st.Task == "" {
			return fmt.Errorf("step %q has no task", st.ID)
		}
	}
	return nil
}

// StepResult reports the outcome of one step. files_touched paths are
// repo-relative and verified against the filesystem.
type StepResult struct {
	ID           string     `json:"id"`
	Status       StepStatus `json:"status"`
	Summary      string     `json:"summary,omitempty"`
	FilesTouched []string   `json:"files_touched,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ExecutionResult is the response for a whole plan run.
type ExecutionResult struct {
	OverallStatus OverallStatus `json:"overall_status"`
	Steps         []StepResult  `json:"steps"`
	FilesModified []string      `json:"files_modified,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	ExecutionTime float64       `json:"execution_time"`
}

// ComputeOverall derives the overall status invariant: success iff every
// step is ok, failed iff none are, partial otherwise.
func ComputeOverall(steps []StepResult) OverallStatus {
	if len(steps) == 0 {
		return OverallFailed
	}
	okCount := 0
	for _, st := range steps {
		if st.Status == StepOK {
			okCount++
		}
	}
	switch okCount {
	case len(steps):
		return OverallSuccess
	case 0:
		return OverallFailed
	default:
		return OverallPartial
	}
}

// UnionFiles merges files_touched across steps, deduplicated in
// first-seen order.
func UnionFiles(steps []StepResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, st := range steps {
		for _, f := range st.FilesTouched {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
