package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/executor"
	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/pathguard"
	"github.com/ninjastack/ninja/internal/plan"
	"github.com/ninjastack/ninja/internal/strategy"
)

// testCommandTimeout bounds each coder_run_tests command.
const testCommandTimeout = 10 * time.Minute

// outputTruncateLimit caps command output echoed back to the client.
const outputTruncateLimit = 16 * 1024

// Coder exposes the coding tool catalogue.
type Coder struct {
	Exec     *executor.Executor
	Config   executor.ConfigSource
	Registry *strategy.Registry
	Driver   executor.Runner
	Log      *logging.Logger
}

// NewCoderServer wires the coder tools onto a fresh MCP server.
func NewCoderServer(c *Coder) *server.MCPServer {
	s := server.NewMCPServer(
		"ninja-coder",
		config.Version,
		server.WithToolCapabilities(true),
	)
	s.AddTools(
		server.ServerTool{Tool: simpleTaskTool(), Handler: c.handleSimpleTask},
		server.ServerTool{Tool: sequentialPlanTool(), Handler: c.handleSequentialPlan},
		server.ServerTool{Tool: parallelPlanTool(), Handler: c.handleParallelPlan},
		server.ServerTool{Tool: runTestsTool(), Handler: c.handleRunTests},
		server.ServerTool{Tool: applyPatchTool(), Handler: c.handleApplyPatch},
		server.ServerTool{Tool: queryLogsTool(), Handler: c.handleQueryLogs},
		server.ServerTool{Tool: getAgentsTool(), Handler: c.handleGetAgents},
		server.ServerTool{Tool: multiAgentTaskTool(), Handler: c.handleMultiAgentTask},
	)
	return s
}

// --- Tool Definitions ---

const planStepSchema = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "description": "Unique step id within the plan"},
		"title": {"type": "string", "description": "Short step title"},
		"task": {"type": "string", "description": "Free-form instruction for this step"},
		"context_paths": {"type": "array", "items": {"type": "string"}, "description": "Repo-relative files to read first"},
		"allowed_globs": {"type": "array", "items": {"type": "string"}, "description": "Write scope; empty permits everything"},
		"deny_globs": {"type": "array", "items": {"type": "string"}, "description": "Paths that must not be written"}
	},
	"required": ["id", "title", "task"]
}`

func simpleTaskTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_simple_task",
		"Run a single coding task against a repository with an AI coding CLI. Returns a step result with verified touched files.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {"type": "string", "description": "What to do, in plain language"},
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"context_paths": {"type": "array", "items": {"type": "string"}, "description": "Repo-relative files to read first"},
				"allowed_globs": {"type": "array", "items": {"type": "string"}, "description": "Write scope; empty permits everything"},
				"deny_globs": {"type": "array", "items": {"type": "string"}, "description": "Paths that must not be written"},
				"model": {"type": "string", "description": "Model override for this call"}
			},
			"required": ["task", "repo_root"]
		}`),
	)
}

func sequentialPlanTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_execute_plan_sequential",
		"Execute an ordered multi-step plan in one CLI session. Later steps may depend on earlier ones.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"steps": {"type": "array", "items": `+planStepSchema+`, "description": "Steps executed strictly in order"},
				"model": {"type": "string", "description": "Model override for this call"}
			},
			"required": ["repo_root", "steps"]
		}`),
	)
}

func parallelPlanTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_execute_plan_parallel",
		"Execute independent plan steps concurrently up to a fan-out limit. Falls back to sequential when the operator cannot parallelize.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"steps": {"type": "array", "items": `+planStepSchema+`, "description": "Independent steps; no step may rely on another"},
				"fanout": {"type": "integer", "description": "Maximum concurrent steps (default 4)"},
				"model": {"type": "string", "description": "Model override for this call"}
			},
			"required": ["repo_root", "steps"]
		}`),
	)
}

func runTestsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_run_tests",
		"Run test commands in the repository and report exit codes with captured output. Commands must start with an allowed test runner.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"commands": {"type": "array", "items": {"type": "string"}, "description": "Test commands, run one at a time; the first word must be an allowed runner such as go, make, or pytest"}
			},
			"required": ["repo_root", "commands"]
		}`),
	)
}

func applyPatchTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_apply_patch",
		"Apply a unified diff to the repository. Target paths are checked against the write scope before anything is applied.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"patch": {"type": "string", "description": "Unified diff text"},
				"allowed_globs": {"type": "array", "items": {"type": "string"}, "description": "Write scope; empty permits everything"},
				"deny_globs": {"type": "array", "items": {"type": "string"}, "description": "Paths that must not be written"}
			},
			"required": ["repo_root", "patch"]
		}`),
	)
}

func queryLogsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_query_logs",
		"Query the module's JSONL execution logs, newest first.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string", "description": "Filter by MCP session id"},
				"task_id": {"type": "string", "description": "Filter by task id"},
				"cli_name": {"type": "string", "description": "Filter by operator CLI name"},
				"level": {"type": "string", "description": "Minimum level: debug, info, warn, error"},
				"limit": {"type": "integer", "description": "Maximum entries (default 100)"}
			}
		}`),
	)
}

func getAgentsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_get_agents",
		"Return the configured multi-agent roster. Diagnostic; the roster may be empty.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func multiAgentTaskTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"coder_multi_agent_task",
		"Run a task with multi-agent coordination. Returns a structured unavailable status when no multi-agent backend is configured.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {"type": "string", "description": "What to do, in plain language"},
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"context_paths": {"type": "array", "items": {"type": "string"}, "description": "Repo-relative files to read first"},
				"allowed_globs": {"type": "array", "items": {"type": "string"}, "description": "Write scope; empty permits everything"},
				"deny_globs": {"type": "array", "items": {"type": "string"}, "description": "Paths that must not be written"},
				"model": {"type": "string", "description": "Model override for this call"}
			},
			"required": ["task", "repo_root"]
		}`),
	)
}

// --- Tool Handlers ---

type simpleTaskArgs struct {
	Task         string   `json:"task"`
	RepoRoot     string   `json:"repo_root"`
	ContextPaths []string `json:"context_paths"`
	AllowedGlobs []string `json:"allowed_globs"`
	DenyGlobs    []string `json:"deny_globs"`
	Model        string   `json:"model"`
}

func (c *Coder) handleSimpleTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args simpleTaskArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.Task == "" {
		return invalidRequest("task is required")
	}
	root, res := c.validateRoot(args.RepoRoot, args.ContextPaths)
	if res != nil {
		return res, nil
	}

	step, err := c.Exec.ExecuteQuick(ctx, executor.QuickRequest{
		RepoRoot:     root,
		Task:         args.Task,
		ContextPaths: args.ContextPaths,
		AllowedGlobs: args.AllowedGlobs,
		DenyGlobs:    args.DenyGlobs,
		Model:        args.Model,
	})
	if err != nil {
		return errorJSON(plan.ErrInternal, "execute task: %v", err)
	}
	return resultJSON(step)
}

type planArgs struct {
	RepoRoot string      `json:"repo_root"`
	Steps    []plan.Step `json:"steps"`
	Fanout   int         `json:"fanout"`
	Model    string      `json:"model"`
}

func (c *Coder) handleSequentialPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, res := c.bindPlan(req)
	if res != nil {
		return res, nil
	}
	result, err := c.Exec.ExecuteSequential(ctx, executor.PlanRequest{
		RepoRoot: root,
		Steps:    args.Steps,
		Model:    args.Model,
	})
	if err != nil {
		return invalidRequest("%v", err)
	}
	return resultJSON(result)
}

func (c *Coder) handleParallelPlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, res := c.bindPlan(req)
	if res != nil {
		return res, nil
	}
	result, err := c.Exec.ExecuteParallel(ctx, executor.PlanRequest{
		RepoRoot: root,
		Steps:    args.Steps,
		Fanout:   args.Fanout,
		Model:    args.Model,
	})
	if err != nil {
		return invalidRequest("%v", err)
	}
	return resultJSON(result)
}

func (c *Coder) bindPlan(req mcp.CallToolRequest) (planArgs, string, *mcp.CallToolResult) {
	var args planArgs
	if err := bindStrict(req, &args); err != nil {
		res, _ := invalidRequest("invalid arguments: %v", err)
		return args, "", res
	}
	if err := plan.ValidateSteps(args.Steps); err != nil {
		res, _ := invalidRequest("invalid plan: %v", err)
		return args, "", res
	}
	var paths []string
	for _, st := range args.Steps {
		paths = append(paths, st.ContextPaths...)
	}
	root, res := c.validateRoot(args.RepoRoot, paths)
	return args, root, res
}

// validateRoot canonicalizes the repo root and checks every context
// path stays inside it.
func (c *Coder) validateRoot(repoRoot string, contextPaths []string) (string, *mcp.CallToolResult) {
	root, err := pathguard.ValidateRepoRoot(repoRoot)
	if err != nil {
		res, _ := invalidRequest("repo_root: %v", err)
		return "", res
	}
	for _, p := range contextPaths {
		if !pathguard.IsWithin(filepath.Join(root, p), root) {
			res, _ := invalidRequest("context path %q escapes the repository root", p)
			return "", res
		}
	}
	return root, nil
}

type runTestsArgs struct {
	RepoRoot string   `json:"repo_root"`
	Commands []string `json:"commands"`
}

type testCommandResult struct {
	Command  string  `json:"command"`
	ExitCode int     `json:"exit_code"`
	Passed   bool    `json:"passed"`
	Output   string  `json:"output"`
	WallTime float64 `json:"wall_time"`
}

type runTestsResult struct {
	Passed  bool                `json:"passed"`
	Results []testCommandResult `json:"results"`
}

// defaultTestRunners are the command names coder_run_tests will spawn
// unless coder.operator_settings.test_commands overrides the list.
var defaultTestRunners = []string{
	"go", "make", "just", "npm", "pnpm", "yarn", "npx", "node",
	"pytest", "python", "python3", "tox", "cargo", "bundle", "rake",
	"mvn", "gradle", "dotnet", "ctest",
}

// allowedTestRunners returns the set of command names the run-tests
// tool accepts as the first word of a command.
func (c *Coder) allowedTestRunners() map[string]bool {
	names := defaultTestRunners
	if doc, err := c.Config.Load(); err == nil {
		if raw, ok := doc.Coder.OperatorSettings["test_commands"]; ok {
			if custom := stringList(raw); len(custom) > 0 {
				names = custom
			}
		}
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func stringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *Coder) handleRunTests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args runTestsArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if len(args.Commands) == 0 {
		return invalidRequest("commands is required")
	}
	root, res := c.validateRoot(args.RepoRoot, nil)
	if res != nil {
		return res, nil
	}
	// Every command is checked before any of them runs.
	allowed := c.allowedTestRunners()
	for _, command := range args.Commands {
		fields := strings.Fields(command)
		if len(fields) == 0 || !allowed[fields[0]] {
			return invalidRequest("command %q is not an allowed test runner; permit it with coder.operator_settings.test_commands", command)
		}
	}

	out := runTestsResult{Passed: true}
	for _, command := range args.Commands {
		raw, err := c.Driver.Run(ctx, strategy.CommandSpec{
			Argv:       []string{"sh", "-c", command},
			WorkingDir: root,
			Timeout:    testCommandTimeout,
		})
		if err != nil {
			return errorJSON(plan.ErrInternal, "run %q: %v", command, err)
		}
		r := testCommandResult{
			Command:  command,
			ExitCode: raw.ExitCode,
			Passed:   raw.ExitCode == 0 && !raw.TimedOut,
			Output:   truncate(raw.Stdout+raw.Stderr, outputTruncateLimit),
			WallTime: raw.WallTime.Seconds(),
		}
		if !r.Passed {
			out.Passed = false
		}
		out.Results = append(out.Results, r)
	}
	return resultJSON(out)
}

type applyPatchArgs struct {
	RepoRoot     string   `json:"repo_root"`
	Patch        string   `json:"patch"`
	AllowedGlobs []string `json:"allowed_globs"`
	DenyGlobs    []string `json:"deny_globs"`
}

type applyPatchResult struct {
	Applied bool     `json:"applied"`
	Files   []string `json:"files"`
}

// patchTargetRe extracts target paths from unified diff headers.
var patchTargetRe = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?(\S+)`)

func (c *Coder) handleApplyPatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args applyPatchArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Patch) == "" {
		return invalidRequest("patch is required")
	}
	root, res := c.validateRoot(args.RepoRoot, nil)
	if res != nil {
		return res, nil
	}

	targets := patchTargets(args.Patch)
	if len(targets) == 0 {
		return invalidRequest("patch has no target files")
	}
	guard := pathguard.New(root, args.AllowedGlobs, args.DenyGlobs)
	if offending := guard.Violations(targets); len(offending) > 0 {
		return invalidRequest("patch targets outside the write scope: %s", strings.Join(offending, ", "))
	}

	internal, err := pathguard.EnsureInternalDirs(root)
	if err != nil {
		return errorJSON(plan.ErrInternal, "prepare internal dir: %v", err)
	}
	patchFile := filepath.Join(internal, "tasks", fmt.Sprintf("patch-%d.diff", time.Now().UnixNano()))
	if err := os.WriteFile(patchFile, []byte(args.Patch), 0o600); err != nil {
		return errorJSON(plan.ErrInternal, "write patch file: %v", err)
	}
	defer os.Remove(patchFile)

	raw, err := c.Driver.Run(ctx, strategy.CommandSpec{
		Argv:       []string{"git", "apply", "--whitespace=nowarn", patchFile},
		WorkingDir: root,
		Timeout:    time.Minute,
	})
	if err != nil {
		return errorJSON(plan.ErrInternal, "git apply: %v", err)
	}
	if raw.ExitCode != 0 {
		return errorJSON(plan.ErrInvalidRequest, "patch did not apply: %s", truncate(raw.Stderr, 2048))
	}
	return resultJSON(applyPatchResult{Applied: true, Files: targets})
}

func patchTargets(patch string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range patchTargetRe.FindAllStringSubmatch(patch, -1) {
		p := m[1]
		if p == "/dev/null" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type queryLogsArgs struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
	CLIName   string `json:"cli_name"`
	Level     string `json:"level"`
	Limit     int    `json:"limit"`
}

func (c *Coder) handleQueryLogs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryLogsArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	entries, err := c.Log.Query(logging.Filter{
		SessionID: args.SessionID,
		TaskID:    args.TaskID,
		CLIName:   args.CLIName,
		Level:     args.Level,
		Limit:     args.Limit,
	})
	if err != nil {
		return errorJSON(plan.ErrInternal, "query logs: %v", err)
	}
	return resultJSON(map[string]any{"entries": entries, "count": len(entries)})
}

type agentInfo struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

func (c *Coder) handleGetAgents(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents, _ := c.agentRoster()
	return resultJSON(map[string]any{"agents": agents, "count": len(agents)})
}

// agentRoster reads the multi-agent roster from the coder operator
// settings. Shape: operator_settings.agents = [{name, role}].
func (c *Coder) agentRoster() ([]agentInfo, error) {
	doc, err := c.Config.Load()
	if err != nil {
		return nil, err
	}
	raw, ok := doc.Coder.OperatorSettings["agents"]
	if !ok {
		return []agentInfo{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return []agentInfo{}, nil
	}
	var agents []agentInfo
	if err := json.Unmarshal(data, &agents); err != nil {
		return []agentInfo{}, nil
	}
	return agents, nil
}

func (c *Coder) handleMultiAgentTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args simpleTaskArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.Task == "" {
		return invalidRequest("task is required")
	}

	agents, err := c.agentRoster()
	if err != nil {
		return errorJSON(plan.ErrInternal, "load config: %v", err)
	}
	doc, _ := c.Config.Load()
	operator := doc.WithEnvOverrides().Coder.Operator
	if len(agents) == 0 || !c.Registry.Available(operator) || !hasMultiAgent(c.Registry, operator) {
		return resultJSON(map[string]any{
			"status":  "unavailable",
			"message": "no multi-agent backend is configured; set coder.operator_settings.agents and use an operator with multi-agent support",
		})
	}

	root, res := c.validateRoot(args.RepoRoot, args.ContextPaths)
	if res != nil {
		return res, nil
	}
	step, err := c.Exec.ExecuteQuick(ctx, executor.QuickRequest{
		RepoRoot:     root,
		Task:         args.Task + "\n\nUse multiple agents to divide and complete this work.",
		ContextPaths: args.ContextPaths,
		AllowedGlobs: args.AllowedGlobs,
		DenyGlobs:    args.DenyGlobs,
		Model:        args.Model,
	})
	if err != nil {
		return errorJSON(plan.ErrInternal, "execute task: %v", err)
	}
	return resultJSON(step)
}

func hasMultiAgent(reg *strategy.Registry, operator string) bool {
	s, err := reg.Get(operator)
	if err != nil {
		return false
	}
	return s.Capabilities().MultiAgent
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}
