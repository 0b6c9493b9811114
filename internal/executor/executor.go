// Package executor orchestrates plan runs: it resolves the operator
// strategy from live configuration, renders the prompt, drives the
// subprocess once, and shapes the parsed output into the response
// model. One CLI invocation per plan, regardless of step count.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ninjastack/ninja/internal/analyzer"
	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/driver"
	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/parse"
	"github.com/ninjastack/ninja/internal/pathguard"
	"github.com/ninjastack/ninja/internal/plan"
	"github.com/ninjastack/ninja/internal/prompt"
	"github.com/ninjastack/ninja/internal/session"
	"github.com/ninjastack/ninja/internal/strategy"
)

// hashEnvVars are the environment variables folded into the config
// hash; changing any of them invalidates the cached strategy.
var hashEnvVars = []string{
	"NINJA_CODE_BIN",
	"NINJA_CODER_MODEL",
	"NINJA_QUICK_MODEL",
	"NINJA_HEAVY_MODEL",
	"NINJA_PARALLEL_MODEL",
}

// defaultFanout caps parallel plans that do not declare one.
const defaultFanout = 4

// Runner abstracts the process driver for tests.
type Runner interface {
	Run(ctx context.Context, spec strategy.CommandSpec) (driver.RawOutcome, error)
}

// ConfigSource abstracts the config store for tests.
type ConfigSource interface {
	Load() (config.Document, error)
}

// QuickRequest is a single-task invocation.
type QuickRequest struct {
	RepoRoot     string
	Task         string
	ContextPaths []string
	AllowedGlobs []string
	DenyGlobs    []string
	Model        string
}

// PlanRequest is a multi-step invocation.
type PlanRequest struct {
	RepoRoot string
	Steps    []plan.Step
	Model    string
	Fanout   int // parallel only
}

// Executor holds the per-module strategy slot. Safe for concurrent use.
type Executor struct {
	Config   ConfigSource
	Registry *strategy.Registry
	Router   *analyzer.Router
	Driver   Runner
	Log      *logging.Logger
	// Sessions, when set, receives one record per completed run.
	Sessions *session.Store

	mu         sync.Mutex
	cached     strategy.Strategy
	cachedHash string
}

// New wires an executor with the real driver and router.
func New(cfg ConfigSource, reg *strategy.Registry, log *logging.Logger) *Executor {
	return &Executor{
		Config:   cfg,
		Registry: reg,
		Router:   &analyzer.Router{Registry: reg, Log: log},
		Driver:   &driver.Driver{},
		Log:      log,
	}
}

// ExecuteQuick runs a single task and returns one step-shaped result.
func (e *Executor) ExecuteQuick(ctx context.Context, req QuickRequest) (plan.StepResult, error) {
	doc, strat, err := e.resolve(req.Task, req.ContextPaths)
	if err != nil {
		return failStep("task", resolveKind(err), err.Error()), nil
	}

	p := prompt.Quick(req.Task, req.RepoRoot, req.ContextPaths, req.AllowedGlobs, req.DenyGlobs)
	model := pickModel(req.Model, doc.Coder.Models.Quick, doc.Coder.Models.Default)
	spec, err := strat.BuildCommand(strategy.Request{
		Mode:         strategy.ModeQuick,
		Prompt:       p,
		Model:        model,
		ContextPaths: req.ContextPaths,
		RepoRoot:     req.RepoRoot,
	})
	if err != nil {
		return failStep("task", plan.ErrInvalidRequest, err.Error()), nil
	}

	start := time.Now()
	raw, err := e.Driver.Run(ctx, spec)
	if err != nil {
		return failStep("task", kindForRunError(err), err.Error()), nil
	}
	if raw.TimedOut {
		return failStep("task", plan.ErrTimeout, timeoutMessage(spec.Timeout)), nil
	}

	out := strat.ParseOutput(raw.Stdout, raw.Stderr, raw.ExitCode, req.RepoRoot, start)
	e.logOutcome(strat.Name(), "quick", raw, out)

	res := plan.StepResult{ID: "task", FilesTouched: out.TouchedPaths, Summary: out.Summary}
	if !out.Success {
		res.Status = plan.StepFail
		res.ErrorMessage = out.Summary
	} else {
		res.Status = plan.StepOK
		if offending := globViolations(req.RepoRoot, req.AllowedGlobs, req.DenyGlobs, out.TouchedPaths); len(offending) > 0 {
			res.ErrorMessage = "files written outside allowed globs: " + strings.Join(offending, ", ")
		}
	}
	e.recordSession("quick", req.Task, strat.Name(), model, start, string(res.Status), res.FilesTouched, out.Notes)
	return res, nil
}

// ExecuteSequential runs an ordered plan in a single CLI invocation.
func (e *Executor) ExecuteSequential(ctx context.Context, req PlanRequest) (plan.ExecutionResult, error) {
	if err := plan.ValidateSteps(req.Steps); err != nil {
		return plan.ExecutionResult{}, fmt.Errorf("invalid plan: %w", err)
	}
	return e.executePlan(ctx, req, strategy.ModeSequential)
}

// ExecuteParallel runs an independent-step plan. Operators without
// parallel support get the sequential prompt, noted in the result.
func (e *Executor) ExecuteParallel(ctx context.Context, req PlanRequest) (plan.ExecutionResult, error) {
	if err := plan.ValidateSteps(req.Steps); err != nil {
		return plan.ExecutionResult{}, fmt.Errorf("invalid plan: %w", err)
	}
	if req.Fanout <= 0 {
		req.Fanout = defaultFanout
	}
	return e.executePlan(ctx, req, strategy.ModeParallel)
}

func (e *Executor) executePlan(ctx context.Context, req PlanRequest, mode strategy.Mode) (plan.ExecutionResult, error) {
	task := planTaskText(req.Steps)
	doc, strat, err := e.resolve(task, nil)
	if err != nil {
		return planFailure(req.Steps, resolveKind(err), err.Error(), 0), nil
	}

	var notes []string
	if mode == strategy.ModeParallel && !strat.Capabilities().MultiAgent {
		mode = strategy.ModeSequential
		notes = append(notes, fmt.Sprintf("operator %s has no parallel support; ran sequentially", strat.Name()))
	}

	var p string
	var model string
	if mode == strategy.ModeParallel {
		p = prompt.Parallel(req.RepoRoot, req.Steps, req.Fanout)
		model = pickModel(req.Model, doc.Coder.Models.Parallel, doc.Coder.Models.Default)
	} else {
		p = prompt.Sequential(req.RepoRoot, req.Steps)
		model = pickModel(req.Model, doc.Coder.Models.Heavy, doc.Coder.Models.Default)
	}

	spec, err := strat.BuildCommand(strategy.Request{
		Mode:     mode,
		Prompt:   p,
		Model:    model,
		RepoRoot: req.RepoRoot,
	})
	if err != nil {
		return planFailure(req.Steps, plan.ErrInvalidRequest, err.Error(), 0), nil
	}

	start := time.Now()
	raw, err := e.Driver.Run(ctx, spec)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return planFailure(req.Steps, kindForRunError(err), err.Error(), elapsed), nil
	}
	if raw.TimedOut {
		return planFailure(req.Steps, plan.ErrTimeout, timeoutMessage(spec.Timeout), raw.WallTime.Seconds()), nil
	}

	out := strat.ParseOutput(raw.Stdout, raw.Stderr, raw.ExitCode, req.RepoRoot, start)
	e.logOutcome(strat.Name(), string(mode), raw, out)

	var result plan.ExecutionResult
	if out.Structured != nil {
		result = *out.Structured
		result.Steps = alignSteps(req.Steps, result.Steps)
	} else {
		result = plan.ExecutionResult{
			Steps:         synthesize(req.Steps, out),
			FilesModified: out.TouchedPaths,
			Notes:         out.Notes,
		}
	}
	result.OverallStatus = plan.ComputeOverall(result.Steps)
	if len(result.FilesModified) == 0 {
		result.FilesModified = plan.UnionFiles(result.Steps)
	}
	result.ExecutionTime = raw.WallTime.Seconds()

	offending := guardNotes(req.RepoRoot, req.Steps, result.FilesModified)
	notes = append(notes, offending...)
	if len(notes) > 0 {
		if result.Notes != "" {
			notes = append([]string{result.Notes}, notes...)
		}
		result.Notes = strings.Join(notes, "; ")
	}
	// Out-of-glob writes degrade a clean success.
	if result.OverallStatus == plan.OverallSuccess && len(offending) > 0 {
		result.OverallStatus = plan.OverallPartial
	}
	e.recordSession(string(mode), task, strat.Name(), model, start, string(result.OverallStatus), result.FilesModified, result.Notes)
	return result, nil
}

// recordSession persists a session record best-effort; a write failure
// is logged and never fails the run.
func (e *Executor) recordSession(mode, task, operator, model string, start time.Time, status string, files []string, notes string) {
	if e.Sessions == nil {
		return
	}
	rec := session.Record{
		Module:        "coder",
		Mode:          mode,
		Task:          task,
		Operator:      operator,
		Model:         model,
		StartedAt:     start.UTC(),
		EndedAt:       time.Now().UTC(),
		Status:        status,
		FilesModified: files,
	}
	if notes != "" {
		rec.Notes = []string{notes}
	}
	if _, err := e.Sessions.Save(rec); err != nil && e.Log != nil {
		e.Log.Warn("session record not saved", logging.Fields{"error": err.Error()})
	}
}

// resolve returns the live config document and the strategy for it,
// replacing the cached strategy when the config hash moved.
func (e *Executor) resolve(task string, contextPaths []string) (config.Document, strategy.Strategy, error) {
	doc, err := e.Config.Load()
	if err != nil {
		return config.Document{}, nil, fmt.Errorf("load config: %w", err)
	}
	doc = doc.WithEnvOverrides()
	hash := configHash(doc)

	e.mu.Lock()
	if e.cached != nil && e.cachedHash == hash {
		s := e.cached
		e.mu.Unlock()
		return doc, s, nil
	}
	e.mu.Unlock()

	a := analyzer.Analyze(task, contextPaths)
	s, err := e.Router.Route(a, doc.Coder.Operator)
	if err != nil {
		return doc, nil, err
	}

	e.mu.Lock()
	e.cached = s
	e.cachedHash = hash
	e.mu.Unlock()
	return doc, s, nil
}

// configHash fingerprints the effective configuration: the document
// plus the override environment variables.
func configHash(doc config.Document) string {
	h := sha256.New()
	if data, err := json.Marshal(doc); err == nil {
		h.Write(data)
	}
	for _, key := range hashEnvVars {
		h.Write([]byte(key + "=" + os.Getenv(key) + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func pickModel(override string, candidates ...string) string {
	if override != "" {
		return override
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func planTaskText(steps []plan.Step) string {
	var b strings.Builder
	for _, st := range steps {
		b.WriteString(st.Task)
		b.WriteString("\n")
	}
	return b.String()
}

// alignSteps forces the response step order and id set to match the
// declared plan; step ids the CLI invented are dropped, declared ids it
// omitted come back as skipped.
func alignSteps(declared []plan.Step, reported []plan.StepResult) []plan.StepResult {
	byID := make(map[string]plan.StepResult, len(reported))
	for _, r := range reported {
		byID[r.ID] = r
	}
	out := make([]plan.StepResult, 0, len(declared))
	for _, st := range declared {
		if r, ok := byID[st.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, plan.StepResult{ID: st.ID, Status: plan.StepSkipped, Summary: "not reported by the operator"})
	}
	return out
}

// synthesize builds per-step results when the CLI emitted no JSON
// block: all ok on success, otherwise first step fails and the rest
// are skipped.
func synthesize(declared []plan.Step, out parse.Outcome) []plan.StepResult {
	steps := make([]plan.StepResult, 0, len(declared))
	if out.Success {
		for i, st := range declared {
			res := plan.StepResult{ID: st.ID, Status: plan.StepOK}
			if i == 0 {
				res.Summary = out.Summary
				res.FilesTouched = out.TouchedPaths
			}
			steps = append(steps, res)
		}
		return steps
	}
	for i, st := range declared {
		if i == 0 {
			steps = append(steps, plan.StepResult{
				ID:           st.ID,
				Status:       plan.StepFail,
				Summary:      out.Summary,
				ErrorMessage: out.Summary,
				FilesTouched: out.TouchedPaths,
			})
			continue
		}
		steps = append(steps, plan.StepResult{ID: st.ID, Status: plan.StepSkipped})
	}
	return steps
}

func planFailure(steps []plan.Step, kind plan.ErrorKind, msg string, elapsed float64) plan.ExecutionResult {
	results := make([]plan.StepResult, 0, len(steps))
	for _, st := range steps {
		results = append(results, plan.StepResult{
			ID:           st.ID,
			Status:       plan.StepFail,
			ErrorMessage: msg,
		})
	}
	return plan.ExecutionResult{
		OverallStatus: plan.OverallFailed,
		Steps:         results,
		Notes:         string(kind),
		ExecutionTime: elapsed,
	}
}

func failStep(id string, kind plan.ErrorKind, msg string) plan.StepResult {
	return plan.StepResult{ID: id, Status: plan.StepFail, Summary: string(kind), ErrorMessage: msg}
}

func kindForRunError(err error) plan.ErrorKind {
	if errors.Is(err, driver.ErrBinaryNotFound) {
		return plan.ErrCLINotFound
	}
	return plan.ErrInternal
}

func resolveKind(err error) plan.ErrorKind {
	if errors.Is(err, analyzer.ErrNoOperator) {
		return plan.ErrCLINotFound
	}
	return plan.ErrInternal
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("timeout after %d s", int(d.Seconds()))
}

// guardNotes reports modified files that fall outside the union of the
// plan's allowed globs or inside any deny glob.
func guardNotes(repoRoot string, steps []plan.Step, files []string) []string {
	var allowed, deny []string
	for _, st := range steps {
		allowed = append(allowed, st.AllowedGlobs...)
		deny = append(deny, st.DenyGlobs...)
	}
	offending := globViolations(repoRoot, allowed, deny, files)
	if len(offending) == 0 {
		return nil
	}
	return []string{"files written outside allowed globs: " + strings.Join(offending, ", ")}
}

func globViolations(repoRoot string, allowed, deny, files []string) []string {
	if len(allowed) == 0 && len(deny) == 0 {
		return nil
	}
	g := pathguard.Guard{Root: repoRoot, Allowed: allowed, Deny: deny}
	return g.Violations(files)
}

func (e *Executor) logOutcome(cli, mode string, raw driver.RawOutcome, out parse.Outcome) {
	if e.Log == nil {
		return
	}
	e.Log.Info("operator run finished", logging.Fields{
		"cli_name":  cli,
		"mode":      mode,
		"exit_code": raw.ExitCode,
		"wall_time": raw.WallTime.Seconds(),
		"success":   out.Success,
		"files":     len(out.TouchedPaths),
	})
}
