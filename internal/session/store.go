// Package session persists one JSON record per executed task under the
// sessions cache directory. Records are diagnostic state: the executor
// writes them best-effort and nothing reads them back at run time.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record captures one operator invocation end to end.
type Record struct {
	ID            string    `json:"id"`
	Module        string    `json:"module"`
	Mode          string    `json:"mode"`
	Task          string    `json:"task"`
	Operator      string    `json:"operator"`
	Model         string    `json:"model,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Status        string    `json:"status"`
	FilesModified []string  `json:"files_modified,omitempty"`
	Notes         []string  `json:"notes,omitempty"`
}

// Store reads and writes session records in one directory.
type Store struct {
	dir string
}

// NewStore returns a store over dir. The directory is created on first
// save, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the record as <id>.json, assigning an ID when empty, and
// returns the ID.
func (s *Store) Save(r Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(s.dir, r.ID+".json"), data, 0o600); err != nil {
		return "", fmt.Errorf("write session record: %w", err)
	}
	return r.ID, nil
}

// Load reads one record by ID.
func (s *Store) Load(id string) (Record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return Record{}, fmt.Errorf("read session record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("parse session record %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit records, newest first by start time.
func (s *Store) List(limit int) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
