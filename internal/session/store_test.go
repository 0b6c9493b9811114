package session

import (
	"testing"
	"time"
)

func TestSaveAssignsIDAndRoundTrips(t *testing.T) {
	s := NewStore(t.TempDir())

	id, err := s.Save(Record{
		Module:        "coder",
		Mode:          "quick",
		Task:          "fix the flaky test",
		Operator:      "aider",
		Model:         "haiku",
		StartedAt:     time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		EndedAt:       time.Date(2026, 8, 25, 10, 1, 30, 0, time.UTC),
		Status:        "success",
		FilesModified: []string{"internal/foo/foo_test.go"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("no id assigned")
	}

	got, err := s.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Operator != "aider" || got.Status != "success" || len(got.FilesModified) != 1 {
		t.Errorf("record = %+v", got)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := NewStore(t.TempDir())

	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := s.Save(Record{
			Module:    "coder",
			Task:      "task",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    "success",
		}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if !records[0].StartedAt.After(records[1].StartedAt) {
		t.Errorf("not newest first: %v then %v", records[0].StartedAt, records[1].StartedAt)
	}
}

func TestListEmptyDirIsNotAnError(t *testing.T) {
	s := NewStore(t.TempDir() + "/never-created")
	records, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if records != nil {
		t.Errorf("records = %v", records)
	}
}
