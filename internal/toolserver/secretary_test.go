package toolserver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ninjastack/ninja/internal/driver"
	"github.com/ninjastack/ninja/internal/logging"
)

func readRepoFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func newTestSecretary(t *testing.T, runner *scriptRunner) *Secretary {
	t.Helper()
	log, err := logging.NewAt("secretary", t.TempDir(), false)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return &Secretary{Driver: runner, Log: log}
}

func TestAnalyseFile(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "pkg/util.go", "package pkg\n\nfunc Add(a, b int) int { return a + b }\n")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleAnalyseFile(context.Background(), callReq("secretary_analyse_file", map[string]any{
		"repo_root": root,
		"path":      "pkg/util.go",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out analyseFileResult
	decodeResult(t, res, &out)
	if out.Language != "go" {
		t.Errorf("language = %q", out.Language)
	}
	if out.Lines != 3 {
		t.Errorf("lines = %d", out.Lines)
	}
	if !strings.Contains(out.Preview, "func Add") {
		t.Errorf("preview = %q", out.Preview)
	}
}

func TestAnalyseFileRejectsEscape(t *testing.T) {
	root := t.TempDir()
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleAnalyseFile(context.Background(), callReq("secretary_analyse_file", map[string]any{
		"repo_root": root,
		"path":      "../../etc/passwd",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("escaping path accepted")
	}
}

func TestFileSearch(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.go", "package a")
	writeRepoFile(t, root, "sub/b.go", "package b")
	writeRepoFile(t, root, "sub/c.txt", "text")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleFileSearch(context.Background(), callReq("secretary_file_search", map[string]any{
		"repo_root": root,
		"pattern":   "**/*.go",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		Files []string `json:"files"`
		Count int      `json:"count"`
	}
	decodeResult(t, res, &out)
	if out.Count != 2 {
		t.Errorf("count = %d, files = %v", out.Count, out.Files)
	}
}

func TestGrep(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "x.go", "package x\n// TODO: widen the API\nfunc f() {}\n")
	writeRepoFile(t, root, "y.txt", "nothing here")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleGrep(context.Background(), callReq("secretary_grep", map[string]any{
		"repo_root": root,
		"pattern":   "TODO:",
		"glob":      "**/*.go",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		Matches []grepMatch `json:"matches"`
	}
	decodeResult(t, res, &out)
	if len(out.Matches) != 1 {
		t.Fatalf("matches = %+v", out.Matches)
	}
	if out.Matches[0].Path != "x.go" || out.Matches[0].Line != 2 {
		t.Errorf("match = %+v", out.Matches[0])
	}
}

func TestGrepRejectsBadPattern(t *testing.T) {
	s := newTestSecretary(t, &scriptRunner{})
	res, err := s.handleGrep(context.Background(), callReq("secretary_grep", map[string]any{
		"repo_root": t.TempDir(),
		"pattern":   "(unclosed",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("invalid regexp accepted")
	}
}

func TestFileTreeSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "src/main.go", "package main")
	writeRepoFile(t, root, ".git/config", "[core]")
	writeRepoFile(t, root, ".ninja/logs/x.jsonl", "{}")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleFileTree(context.Background(), callReq("secretary_file_tree", map[string]any{
		"repo_root": root,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		Tree string `json:"tree"`
	}
	decodeResult(t, res, &out)
	if !strings.Contains(out.Tree, "main.go") {
		t.Errorf("tree missing file:\n%s", out.Tree)
	}
	if strings.Contains(out.Tree, ".git") || strings.Contains(out.Tree, ".ninja") {
		t.Errorf("hidden dirs leaked into tree:\n%s", out.Tree)
	}
}

func TestCodebaseReport(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.go", "package a\nvar X = 1\n")
	writeRepoFile(t, root, "b.go", "package b\n")
	writeRepoFile(t, root, "doc.md", "# Title\n")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleCodebaseReport(context.Background(), callReq("secretary_codebase_report", map[string]any{
		"repo_root": root,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		TotalFiles int            `json:"total_files"`
		Languages  []languageStat `json:"languages"`
	}
	decodeResult(t, res, &out)
	if out.TotalFiles != 3 {
		t.Errorf("total_files = %d", out.TotalFiles)
	}
	if len(out.Languages) == 0 || out.Languages[0].Language != "go" {
		t.Errorf("languages = %+v", out.Languages)
	}
}

func TestDocumentSummary(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "README.md",
		"# My Project\n\nIntro text here.\n\n## Install\n\nSee [docs](https://example.com/docs).\n\n## Usage\n\nRun it.\n")
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleDocumentSummary(context.Background(), callReq("secretary_document_summary", map[string]any{
		"repo_root": root,
		"path":      "README.md",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out documentSummaryResult
	decodeResult(t, res, &out)
	if out.Title != "My Project" {
		t.Errorf("title = %q", out.Title)
	}
	if len(out.Headings) != 3 {
		t.Errorf("headings = %+v", out.Headings)
	}
	if len(out.Links) != 1 || out.Links[0] != "https://example.com/docs" {
		t.Errorf("links = %v", out.Links)
	}
	if out.Words == 0 {
		t.Error("word count is zero")
	}
}

func TestUpdateDocumentationReplaceAndAppend(t *testing.T) {
	root := t.TempDir()
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleUpdateDocumentation(context.Background(), callReq("secretary_update_documentation", map[string]any{
		"repo_root": root,
		"path":      "docs/notes.md",
		"content":   "# Notes\n",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("replace failed: %s", resultText(t, res))
	}

	res, err = s.handleUpdateDocumentation(context.Background(), callReq("secretary_update_documentation", map[string]any{
		"repo_root": root,
		"path":      "docs/notes.md",
		"content":   "more\n",
		"mode":      "append",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("append failed: %s", resultText(t, res))
	}

	data := readRepoFile(t, root, "docs/notes.md")
	if data != "# Notes\nmore\n" {
		t.Errorf("content = %q", data)
	}
}

func TestUpdateDocumentationBlocksInternalDir(t *testing.T) {
	root := t.TempDir()
	s := newTestSecretary(t, &scriptRunner{})

	res, err := s.handleUpdateDocumentation(context.Background(), callReq("secretary_update_documentation", map[string]any{
		"repo_root": root,
		"path":      ".git/hooks/pre-commit",
		"content":   "#!/bin/sh\n",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("write into .git accepted")
	}
}

func TestSessionReport(t *testing.T) {
	s := newTestSecretary(t, &scriptRunner{})
	s.Log.Info("task started", logging.Fields{"session_id": "s9"})
	s.Log.Error("task failed", logging.Fields{"session_id": "s9"})
	s.Log.Info("unrelated", logging.Fields{"session_id": "other"})

	res, err := s.handleSessionReport(context.Background(), callReq("secretary_session_report", map[string]any{
		"session_id": "s9",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		Entries int            `json:"entries"`
		ByLevel map[string]int `json:"by_level"`
	}
	decodeResult(t, res, &out)
	if out.Entries != 2 {
		t.Errorf("entries = %d", out.Entries)
	}
	if out.ByLevel["error"] != 1 {
		t.Errorf("by_level = %v", out.ByLevel)
	}
}

func TestGitStatusGoesThroughDriver(t *testing.T) {
	root := t.TempDir()
	runner := &scriptRunner{outcomes: []driver.RawOutcome{{Stdout: "## main\n M a.go\n"}}}
	s := newTestSecretary(t, runner)

	handler := s.gitHandler("status", "--porcelain=v1", "--branch")
	res, err := handler(context.Background(), callReq("secretary_git_status", map[string]any{
		"repo_root": root,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if len(runner.specs) != 1 || runner.specs[0].Argv[0] != "git" || runner.specs[0].Argv[1] != "status" {
		t.Errorf("argv = %v", runner.specs)
	}
	if runner.specs[0].WorkingDir == "" {
		t.Error("git run without a working dir")
	}
}

func TestGitCommitStagesThenCommits(t *testing.T) {
	root := t.TempDir()
	runner := &scriptRunner{outcomes: []driver.RawOutcome{{}, {Stdout: "committed"}}}
	s := newTestSecretary(t, runner)

	res, err := s.handleGitCommit(context.Background(), callReq("secretary_git_commit", map[string]any{
		"repo_root": root,
		"message":   "update docs",
		"paths":     []any{"docs/notes.md"},
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if len(runner.specs) != 2 {
		t.Fatalf("specs = %v", runner.specs)
	}
	if runner.specs[0].Argv[1] != "add" || runner.specs[1].Argv[1] != "commit" {
		t.Errorf("command order: %v", runner.specs)
	}
}
