package toolserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/executor"
	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/pathguard"
	"github.com/ninjastack/ninja/internal/plan"
	"github.com/ninjastack/ninja/internal/strategy"
)

// secretaryScanLimit bounds tree walks so a huge repo cannot stall a
// tool call.
const secretaryScanLimit = 20000

// gitTimeout bounds every git subprocess the secretary spawns.
const gitTimeout = 2 * time.Minute

// Secretary exposes repository housekeeping tools: file analysis,
// search, documentation, and a read-mostly git subset.
type Secretary struct {
	Driver executor.Runner
	Log    *logging.Logger
}

// NewSecretaryServer wires the secretary tools onto a fresh MCP server.
func NewSecretaryServer(s *Secretary) *server.MCPServer {
	srv := server.NewMCPServer(
		"ninja-secretary",
		config.Version,
		server.WithToolCapabilities(true),
	)
	srv.AddTools(
		server.ServerTool{Tool: analyseFileTool(), Handler: s.handleAnalyseFile},
		server.ServerTool{Tool: fileSearchTool(), Handler: s.handleFileSearch},
		server.ServerTool{Tool: grepTool(), Handler: s.handleGrep},
		server.ServerTool{Tool: fileTreeTool(), Handler: s.handleFileTree},
		server.ServerTool{Tool: codebaseReportTool(), Handler: s.handleCodebaseReport},
		server.ServerTool{Tool: documentSummaryTool(), Handler: s.handleDocumentSummary},
		server.ServerTool{Tool: updateDocumentationTool(), Handler: s.handleUpdateDocumentation},
		server.ServerTool{Tool: sessionReportTool(), Handler: s.handleSessionReport},
		server.ServerTool{Tool: gitTool("secretary_git_status", "Show the working tree status."), Handler: s.gitHandler("status", "--porcelain=v1", "--branch")},
		server.ServerTool{Tool: gitTool("secretary_git_diff", "Show unstaged changes as a unified diff."), Handler: s.gitHandler("diff")},
		server.ServerTool{Tool: gitTool("secretary_git_log", "Show recent commit history."), Handler: s.gitHandler("log", "--oneline", "-20")},
		server.ServerTool{Tool: gitCommitTool(), Handler: s.handleGitCommit},
	)
	return srv
}

// --- Tool Definitions ---

func analyseFileTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_analyse_file",
		"Describe one file: size, line count, detected language, and a short preview.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"path": {"type": "string", "description": "Repo-relative file path"}
			},
			"required": ["repo_root", "path"]
		}`),
	)
}

func fileSearchTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_file_search",
		"Find files by glob pattern (doublestar syntax, e.g. **/*.go).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"pattern": {"type": "string", "description": "Glob pattern matched against repo-relative paths"},
				"limit": {"type": "integer", "description": "Maximum results (default 100)"}
			},
			"required": ["repo_root", "pattern"]
		}`),
	)
}

func grepTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_grep",
		"Search file contents with a regular expression.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"pattern": {"type": "string", "description": "RE2 regular expression"},
				"glob": {"type": "string", "description": "Restrict to files matching this glob"},
				"limit": {"type": "integer", "description": "Maximum matching lines (default 100)"}
			},
			"required": ["repo_root", "pattern"]
		}`),
	)
}

func fileTreeTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_file_tree",
		"Render the directory tree, hidden and internal directories excluded.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"max_depth": {"type": "integer", "description": "Depth limit (default 4)"}
			},
			"required": ["repo_root"]
		}`),
	)
}

func codebaseReportTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_codebase_report",
		"Summarize the codebase: file and line counts per language, largest files.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"}
			},
			"required": ["repo_root"]
		}`),
	)
}

func documentSummaryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_document_summary",
		"Summarize a markdown document: heading outline, links, word count.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"path": {"type": "string", "description": "Repo-relative markdown file"}
			},
			"required": ["repo_root", "path"]
		}`),
	)
}

func updateDocumentationTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_update_documentation",
		"Write or append to a documentation file inside the repository.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"path": {"type": "string", "description": "Repo-relative file to write"},
				"content": {"type": "string", "description": "Markdown content"},
				"mode": {"type": "string", "enum": ["replace", "append"], "description": "Write mode (default replace)"}
			},
			"required": ["repo_root", "path", "content"]
		}`),
	)
}

func sessionReportTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_session_report",
		"Summarize the logged activity of one MCP session.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string", "description": "Session id to report on"}
			},
			"required": ["session_id"]
		}`),
	)
}

func gitTool(name, description string) mcp.Tool {
	return mcp.NewToolWithRawSchema(
		name,
		description,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"}
			},
			"required": ["repo_root"]
		}`),
	)
}

func gitCommitTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"secretary_git_commit",
		"Stage the given paths and commit them with a message.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_root": {"type": "string", "description": "Absolute path to the repository root"},
				"message": {"type": "string", "description": "Commit message"},
				"paths": {"type": "array", "items": {"type": "string"}, "description": "Repo-relative paths to stage (default: all tracked changes)"}
			},
			"required": ["repo_root", "message"]
		}`),
	)
}

// --- Tool Handlers ---

type filePathArgs struct {
	RepoRoot string `json:"repo_root"`
	Path     string `json:"path"`
}

// resolveFile validates the root and the repo-relative path together.
func resolveFile(repoRoot, rel string) (root, full string, res *mcp.CallToolResult) {
	root, err := pathguard.ValidateRepoRoot(repoRoot)
	if err != nil {
		r, _ := invalidRequest("repo_root: %v", err)
		return "", "", r
	}
	full = filepath.Join(root, rel)
	if !pathguard.IsWithin(full, root) {
		r, _ := invalidRequest("path %q escapes the repository root", rel)
		return "", "", r
	}
	return root, full, nil
}

type analyseFileResult struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Lines     int    `json:"lines"`
	Language  string `json:"language"`
	Preview   string `json:"preview"`
}

func (s *Secretary) handleAnalyseFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args filePathArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	_, full, res := resolveFile(args.RepoRoot, args.Path)
	if res != nil {
		return res, nil
	}
	info, err := os.Stat(full)
	if err != nil {
		return invalidRequest("stat %s: %v", args.Path, err)
	}
	if info.IsDir() {
		return invalidRequest("%s is a directory", args.Path)
	}

	f, err := os.Open(full)
	if err != nil {
		return errorJSON(plan.ErrInternal, "open %s: %v", args.Path, err)
	}
	defer f.Close()

	lines := 0
	var preview strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines++
		if lines <= 20 {
			preview.WriteString(scanner.Text())
			preview.WriteString("\n")
		}
	}
	return resultJSON(analyseFileResult{
		Path:      args.Path,
		SizeBytes: info.Size(),
		Lines:     lines,
		Language:  languageFor(full),
		Preview:   preview.String(),
	})
}

var languageByExt = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
	".tsx": "typescript", ".jsx": "javascript", ".rs": "rust", ".rb": "ruby",
	".java": "java", ".c": "c", ".h": "c", ".cpp": "cpp", ".cc": "cpp",
	".md": "markdown", ".json": "json", ".yaml": "yaml", ".yml": "yaml",
	".toml": "toml", ".sh": "shell", ".sql": "sql", ".html": "html", ".css": "css",
}

func languageFor(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "unknown"
}

type fileSearchArgs struct {
	RepoRoot string `json:"repo_root"`
	Pattern  string `json:"pattern"`
	Limit    int    `json:"limit"`
}

func (s *Secretary) handleFileSearch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args fileSearchArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.Pattern == "" {
		return invalidRequest("pattern is required")
	}
	root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
	if err != nil {
		return invalidRequest("repo_root: %v", err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 100
	}

	var matches []string
	walkRepo(root, func(rel string, d fs.DirEntry) bool {
		if d.IsDir() {
			return true
		}
		if ok, err := doublestar.Match(args.Pattern, rel); err == nil && ok {
			matches = append(matches, rel)
		}
		return len(matches) < limit
	})
	return resultJSON(map[string]any{"files": matches, "count": len(matches)})
}

type grepArgs struct {
	RepoRoot string `json:"repo_root"`
	Pattern  string `json:"pattern"`
	Glob     string `json:"glob"`
	Limit    int    `json:"limit"`
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (s *Secretary) handleGrep(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args grepArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	re, err := regexp.Compile(args.Pattern)
	if err != nil {
		return invalidRequest("pattern: %v", err)
	}
	root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
	if err != nil {
		return invalidRequest("repo_root: %v", err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 100
	}

	var matches []grepMatch
	walkRepo(root, func(rel string, d fs.DirEntry) bool {
		if d.IsDir() {
			return true
		}
		if args.Glob != "" {
			if ok, err := doublestar.Match(args.Glob, rel); err != nil || !ok {
				return true
			}
		}
		f, err := os.Open(filepath.Join(root, rel))
		if err != nil {
			return true
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			txt := scanner.Text()
			if re.MatchString(txt) {
				matches = append(matches, grepMatch{Path: rel, Line: line, Text: txt})
				if len(matches) >= limit {
					break
				}
			}
		}
		f.Close()
		return len(matches) < limit
	})
	return resultJSON(map[string]any{"matches": matches, "count": len(matches)})
}

type fileTreeArgs struct {
	RepoRoot string `json:"repo_root"`
	MaxDepth int    `json:"max_depth"`
}

func (s *Secretary) handleFileTree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args fileTreeArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
	if err != nil {
		return invalidRequest("repo_root: %v", err)
	}
	depth := args.MaxDepth
	if depth <= 0 {
		depth = 4
	}

	var b strings.Builder
	b.WriteString(filepath.Base(root) + "/\n")
	walkRepo(root, func(rel string, d fs.DirEntry) bool {
		level := strings.Count(rel, "/") + 1
		if level > depth {
			return true
		}
		b.WriteString(strings.Repeat("  ", level))
		b.WriteString(d.Name())
		if d.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
		return true
	})
	return resultJSON(map[string]any{"tree": b.String()})
}

type codebaseReportArgs struct {
	RepoRoot string `json:"repo_root"`
}

type languageStat struct {
	Language string `json:"language"`
	Files    int    `json:"files"`
	Lines    int    `json:"lines"`
}

type largeFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

func (s *Secretary) handleCodebaseReport(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args codebaseReportArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
	if err != nil {
		return invalidRequest("repo_root: %v", err)
	}

	byLang := make(map[string]*languageStat)
	var files []largeFile
	totalFiles, totalLines := 0, 0
	walkRepo(root, func(rel string, d fs.DirEntry) bool {
		if d.IsDir() {
			return true
		}
		info, err := d.Info()
		if err != nil {
			return true
		}
		totalFiles++
		lang := languageFor(rel)
		st, ok := byLang[lang]
		if !ok {
			st = &languageStat{Language: lang}
			byLang[lang] = st
		}
		st.Files++
		lines := countLines(filepath.Join(root, rel))
		st.Lines += lines
		totalLines += lines
		files = append(files, largeFile{Path: rel, SizeBytes: info.Size()})
		return true
	})

	stats := make([]languageStat, 0, len(byLang))
	for _, st := range byLang {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Lines > stats[j].Lines })
	sort.Slice(files, func(i, j int) bool { return files[i].SizeBytes > files[j].SizeBytes })
	if len(files) > 10 {
		files = files[:10]
	}
	return resultJSON(map[string]any{
		"total_files":   totalFiles,
		"total_lines":   totalLines,
		"languages":     stats,
		"largest_files": files,
	})
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n
}

type headingEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type documentSummaryResult struct {
	Path     string         `json:"path"`
	Title    string         `json:"title,omitempty"`
	Headings []headingEntry `json:"headings"`
	Links    []string       `json:"links"`
	Words    int            `json:"words"`
}

func (s *Secretary) handleDocumentSummary(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args filePathArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	_, full, res := resolveFile(args.RepoRoot, args.Path)
	if res != nil {
		return res, nil
	}
	src, err := os.ReadFile(full)
	if err != nil {
		return invalidRequest("read %s: %v", args.Path, err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	out := documentSummaryResult{Path: args.Path, Words: len(strings.Fields(string(src)))}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			h := headingEntry{Level: node.Level, Text: nodeText(node, src)}
			out.Headings = append(out.Headings, h)
			if out.Title == "" && node.Level == 1 {
				out.Title = h.Text
			}
		case *ast.Link:
			out.Links = append(out.Links, string(node.Destination))
		case *ast.AutoLink:
			out.Links = append(out.Links, string(node.URL(src)))
		}
		return ast.WalkContinue, nil
	})
	return resultJSON(out)
}

// nodeText flattens the text content of a markdown node.
func nodeText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

type updateDocArgs struct {
	RepoRoot string `json:"repo_root"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Mode     string `json:"mode"`
}

func (s *Secretary) handleUpdateDocumentation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args updateDocArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.Content == "" {
		return invalidRequest("content is required")
	}
	root, full, res := resolveFile(args.RepoRoot, args.Path)
	if res != nil {
		return res, nil
	}
	guard := pathguard.New(root, nil, nil)
	if !guard.Permits(args.Path) {
		return invalidRequest("writes to %q are not permitted", args.Path)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errorJSON(plan.ErrInternal, "create parent dir: %v", err)
	}
	switch args.Mode {
	case "append":
		f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errorJSON(plan.ErrInternal, "open %s: %v", args.Path, err)
		}
		defer f.Close()
		if _, err := f.WriteString(args.Content); err != nil {
			return errorJSON(plan.ErrInternal, "append %s: %v", args.Path, err)
		}
	case "", "replace":
		if err := os.WriteFile(full, []byte(args.Content), 0o644); err != nil {
			return errorJSON(plan.ErrInternal, "write %s: %v", args.Path, err)
		}
	default:
		return invalidRequest("mode must be replace or append, got %q", args.Mode)
	}
	return resultJSON(map[string]any{"written": args.Path, "bytes": len(args.Content)})
}

type sessionReportArgs struct {
	SessionID string `json:"session_id"`
}

func (s *Secretary) handleSessionReport(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionReportArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.SessionID == "" {
		return invalidRequest("session_id is required")
	}
	entries, err := s.Log.Query(logging.Filter{SessionID: args.SessionID, Limit: 1000})
	if err != nil {
		return errorJSON(plan.ErrInternal, "query logs: %v", err)
	}

	byLevel := make(map[string]int)
	var first, last time.Time
	for _, e := range entries {
		byLevel[e.Level]++
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	report := map[string]any{
		"session_id": args.SessionID,
		"entries":    len(entries),
		"by_level":   byLevel,
	}
	if !first.IsZero() {
		report["first_at"] = first
		report["last_at"] = last
	}
	return resultJSON(report)
}

type gitArgs struct {
	RepoRoot string `json:"repo_root"`
}

// gitHandler builds a handler for one read-only git command.
func (s *Secretary) gitHandler(gitArgv ...string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args gitArgs
		if err := bindStrict(req, &args); err != nil {
			return invalidRequest("invalid arguments: %v", err)
		}
		root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
		if err != nil {
			return invalidRequest("repo_root: %v", err)
		}
		return s.runGit(ctx, root, gitArgv)
	}
}

type gitCommitArgs struct {
	RepoRoot string   `json:"repo_root"`
	Message  string   `json:"message"`
	Paths    []string `json:"paths"`
}

func (s *Secretary) handleGitCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args gitCommitArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Message) == "" {
		return invalidRequest("message is required")
	}
	root, err := pathguard.ValidateRepoRoot(args.RepoRoot)
	if err != nil {
		return invalidRequest("repo_root: %v", err)
	}
	for _, p := range args.Paths {
		if !pathguard.IsWithin(filepath.Join(root, p), root) {
			return invalidRequest("path %q escapes the repository root", p)
		}
	}

	addArgv := []string{"add", "--"}
	if len(args.Paths) > 0 {
		addArgv = append(addArgv, args.Paths...)
	} else {
		addArgv = append(addArgv, "-u", ".")
	}
	if res, err := s.runGit(ctx, root, addArgv); err != nil || res.IsError {
		return res, err
	}
	return s.runGit(ctx, root, []string{"commit", "-m", args.Message})
}

func (s *Secretary) runGit(ctx context.Context, root string, gitArgv []string) (*mcp.CallToolResult, error) {
	raw, err := s.Driver.Run(ctx, strategy.CommandSpec{
		Argv:       append([]string{"git"}, gitArgv...),
		WorkingDir: root,
		Timeout:    gitTimeout,
	})
	if err != nil {
		return errorJSON(plan.ErrInternal, "git %s: %v", gitArgv[0], err)
	}
	if raw.ExitCode != 0 {
		return errorJSON(plan.ErrInternal, "git %s failed: %s", gitArgv[0], truncate(raw.Stderr+raw.Stdout, 2048))
	}
	return resultJSON(map[string]any{
		"command": "git " + strings.Join(gitArgv, " "),
		"output":  truncate(raw.Stdout, outputTruncateLimit),
	})
}

// walkRepo visits repo entries in path order, skipping hidden and
// internal directories, bounded by secretaryScanLimit. The callback
// returns false to stop early.
func walkRepo(root string, visit func(rel string, d fs.DirEntry) bool) {
	visited := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (strings.HasPrefix(name, ".") || name == pathguard.InternalDirName) {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasPrefix(name, ".") {
			return nil
		}
		visited++
		if visited > secretaryScanLimit {
			return fmt.Errorf("scan limit reached")
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		if !visit(filepath.ToSlash(rel), d) {
			return fmt.Errorf("stopped")
		}
		return nil
	})
}
