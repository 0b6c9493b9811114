// Package mcp edits MCP client configuration files: it registers the
// ninja servers in a Claude client config without disturbing whatever
// other servers the user already has.
package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// modules are the servers registered by setup.
var modules = []string{"coder", "secretary", "researcher"}

// DefaultClientConfig returns the Claude client config location,
// honoring the CLAUDE_CONFIG_PATH override.
func DefaultClientConfig() (string, error) {
	if p := os.Getenv("CLAUDE_CONFIG_PATH"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".claude.json"), nil
}

// Register merges the ninja server entries into the client config at
// path, creating the file when absent. Existing non-ninja entries are
// preserved; ninja entries are overwritten so re-running setup repairs
// a stale registration. The first modification of an existing file
// leaves a one-time backup next to it.
//
// With useDaemon, entries point at ninja-proxy so requests reach the
// long-lived HTTP daemons; otherwise each entry spawns the module
// server directly over stdio.
func Register(path string, useDaemon bool) ([]string, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse client config %s: %w", path, err)
		}
		backup := path + ".ninja-backup"
		if _, err := os.Stat(backup); os.IsNotExist(err) {
			if err := copyFile(path, backup); err != nil {
				return nil, fmt.Errorf("back up client config: %w", err)
			}
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create client config dir: %w", err)
		}
	default:
		return nil, fmt.Errorf("read client config: %w", err)
	}

	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}

	var registered []string
	for _, module := range modules {
		name := "ninja-" + module
		servers[name] = serverEntry(module, useDaemon)
		registered = append(registered, name)
	}
	sort.Strings(registered)
	doc["mcpServers"] = servers

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal client config: %w", err)
	}
	out = append(out, '\n')
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return nil, fmt.Errorf("write client config: %w", err)
	}
	return registered, nil
}

func serverEntry(module string, useDaemon bool) map[string]any {
	if useDaemon {
		return map[string]any{
			"command": "ninja-proxy",
			"args":    []any{"--module", module},
		}
	}
	return map[string]any{
		"command": "ninja-" + module,
		"args":    []any{"--stdio"},
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
