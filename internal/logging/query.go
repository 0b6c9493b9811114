package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry is one decoded JSONL log event.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Logger    string         `json:"logger"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	CLIName   string         `json:"cli_name,omitempty"`
	Model     string         `json:"model,omitempty"`
	Extra     map[string]any `json:"-"`
}

// Filter selects log entries. Empty fields match everything. Limit caps
// the number of returned entries (most recent first); zero means 100.
type Filter struct {
	SessionID string
	TaskID    string
	CLIName   string
	Level     string
	Limit     int
}

var knownEntryKeys = map[string]bool{
	"timestamp": true, "level": true, "logger": true, "message": true,
	"session_id": true, "task_id": true, "cli_name": true, "model": true,
}

// Query reads this module's daily files and returns the most recent
// entries matching the filter, newest first. This is a diagnostic read;
// the logger's own behavior never depends on it.
func (l *Logger) Query(f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	pattern := filepath.Join(l.dir, l.module+"-*.jsonl")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob log files: %w", err)
	}
	// Newest day first; within a file lines are chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var out []Entry
	for _, name := range files {
		entries, err := readEntries(name)
		if err != nil {
			return nil, err
		}
		// Walk the file backwards so out stays newest-first.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if !f.matches(e) {
				continue
			}
			out = append(out, e)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (f Filter) matches(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.CLIName != "" && e.CLIName != f.CLIName {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}

func readEntries(name string) ([]Entry, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // tolerate torn or foreign lines
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err == nil {
			for k, v := range raw {
				if !knownEntryKeys[k] {
					if e.Extra == nil {
						e.Extra = make(map[string]any)
					}
					e.Extra[k] = v
				}
			}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return entries, nil
}
