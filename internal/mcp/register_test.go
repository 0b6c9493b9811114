package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readServers(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	servers, _ := doc["mcpServers"].(map[string]any)
	return servers
}

func TestRegisterCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".claude.json")

	names, err := Register(path, false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("registered = %v", names)
	}

	servers := readServers(t, path)
	entry, ok := servers["ninja-coder"].(map[string]any)
	if !ok {
		t.Fatalf("servers = %v", servers)
	}
	if entry["command"] != "ninja-coder" {
		t.Errorf("command = %v", entry["command"])
	}
}

func TestRegisterPreservesExistingServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")
	existing := `{"mcpServers": {"github": {"command": "gh-mcp"}}, "theme": "dark"}`
	if err := os.WriteFile(path, []byte(existing), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Register(path, false); err != nil {
		t.Fatalf("Register: %v", err)
	}

	servers := readServers(t, path)
	if _, ok := servers["github"]; !ok {
		t.Error("pre-existing server entry lost")
	}
	if _, ok := servers["ninja-secretary"]; !ok {
		t.Error("ninja entry missing")
	}

	// Unrelated top-level keys survive too.
	data, _ := os.ReadFile(path)
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["theme"] != "dark" {
		t.Errorf("theme = %v", doc["theme"])
	}

	// The original was backed up once.
	if _, err := os.Stat(path + ".ninja-backup"); err != nil {
		t.Errorf("backup: %v", err)
	}
}

func TestRegisterDaemonModeUsesProxy(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")

	if _, err := Register(path, true); err != nil {
		t.Fatalf("Register: %v", err)
	}

	servers := readServers(t, path)
	entry := servers["ninja-researcher"].(map[string]any)
	if entry["command"] != "ninja-proxy" {
		t.Errorf("command = %v", entry["command"])
	}
	args, _ := entry["args"].([]any)
	if len(args) != 2 || args[1] != "researcher" {
		t.Errorf("args = %v", args)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")

	if _, err := Register(path, false); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(path)
	if _, err := Register(path, false); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("second run changed the document")
	}
}

func TestRegisterRejectsMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Register(path, false); err == nil {
		t.Error("malformed config accepted")
	}
}
