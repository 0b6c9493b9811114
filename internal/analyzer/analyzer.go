// Package analyzer classifies coding tasks and routes them to an
// operator CLI. Analysis is a pure function of the task text and
// context paths; routing layers availability on top.
package analyzer

import (
	"sort"
	"strings"
)

// Complexity buckets a task by expected scope.
type Complexity string

const (
	Simple    Complexity = "simple"
	Moderate  Complexity = "moderate"
	Complex   Complexity = "complex"
	FullStack Complexity = "full_stack"
)

// TaskType buckets a task by the kind of work requested.
type TaskType string

const (
	QuickFix     TaskType = "quick_fix"
	Refactor     TaskType = "refactor"
	Feature      TaskType = "feature"
	Architecture TaskType = "architecture"
	MultiAgent   TaskType = "multi_agent"
)

// Analysis is the classifier's verdict.
type Analysis struct {
	Complexity         Complexity `json:"complexity"`
	TaskType           TaskType   `json:"task_type"`
	EstimatedFiles     int        `json:"estimated_files"`
	RequiresSession    bool       `json:"requires_session"`
	RequiresMultiAgent bool       `json:"requires_multi_agent"`
	Keywords           []string   `json:"keywords"`
	SuggestedOperator  string     `json:"suggested_operator"`
}

// contextPathsComplexThreshold: this many context paths or more bumps
// the task to complex regardless of keywords.
const contextPathsComplexThreshold = 6

var typeKeywords = map[TaskType][]string{
	MultiAgent:   {"multi-agent", "multi agent", "multiple agents", "agent team", "swarm"},
	Architecture: {"architecture", "redesign", "restructure", "migrate", "overhaul", "system design"},
	Refactor:     {"refactor", "clean up", "cleanup", "simplify", "extract", "rename", "reorganize"},
	QuickFix:     {"fix typo", "quick fix", "small fix", "one-line", "one line", "hotfix", "bump"},
	Feature:      {"add", "implement", "create", "build", "support", "feature", "endpoint"},
}

// typeOrder is the precedence for keyword classification; the first
// type with a hit wins.
var typeOrder = []TaskType{MultiAgent, Architecture, Refactor, QuickFix, Feature}

var complexityKeywords = map[Complexity][]string{
	FullStack: {"full stack", "full-stack", "frontend and backend", "end to end", "end-to-end"},
	Complex:   {"architecture", "redesign", "migrate", "overhaul", "across the codebase", "all modules"},
	Simple:    {"typo", "one-line", "one line", "rename", "comment", "bump"},
}

// Analyze classifies a task. Deterministic: same inputs, same verdict.
func Analyze(task string, contextPaths []string) Analysis {
	lower := strings.ToLower(task)

	taskType := Feature
	var hits []string
	for _, tt := range typeOrder {
		matched := false
		for _, kw := range typeKeywords[tt] {
			if strings.Contains(lower, kw) {
				hits = append(hits, kw)
				matched = true
			}
		}
		if matched {
			taskType = tt
			break
		}
	}

	complexity := Moderate
	switch {
	case containsAny(lower, complexityKeywords[FullStack]):
		complexity = FullStack
	case len(contextPaths) >= contextPathsComplexThreshold,
		containsAny(lower, complexityKeywords[Complex]):
		complexity = Complex
	case containsAny(lower, complexityKeywords[Simple]):
		complexity = Simple
	case taskType == QuickFix:
		complexity = Simple
	}

	estimated := len(contextPaths)
	if estimated == 0 {
		switch complexity {
		case Simple:
			estimated = 1
		case Moderate:
			estimated = 3
		case Complex:
			estimated = 8
		case FullStack:
			estimated = 12
		}
	}

	requiresMulti := taskType == MultiAgent
	requiresSession := requiresMulti || complexity == FullStack || taskType == Architecture

	sort.Strings(hits)
	return Analysis{
		Complexity:         complexity,
		TaskType:           taskType,
		EstimatedFiles:     estimated,
		RequiresSession:    requiresSession,
		RequiresMultiAgent: requiresMulti,
		Keywords:           hits,
		SuggestedOperator:  suggestOperator(taskType, complexity),
	}
}

func suggestOperator(tt TaskType, c Complexity) string {
	switch {
	case tt == MultiAgent:
		return "opencode"
	case tt == QuickFix && c == Simple:
		return "aider"
	case c == FullStack || tt == Architecture:
		return "opencode"
	default:
		return "claude"
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
