package credstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("OPENROUTER_API_KEY", "sk-or-v1-abcdef0123456789", "openrouter"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get("OPENROUTER_API_KEY")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-or-v1-abcdef0123456789" {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestConcurrentGetAndSet(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("KEY", "initial-value-0000", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Get writes last_used, so it must hold the same mutex as Set.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := s.Set("KEY", fmt.Sprintf("value-%04d", i), ""); err != nil {
				t.Errorf("Set: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := s.Get("KEY"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestGetAbsentReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRejectsEmptyNameAndValue(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("", "value", ""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := s.Set("NAME", "", ""); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestOverwriteUpdatesValue(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("KEY", "first-value-1234", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("KEY", "second-value-5678", ""); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get("KEY")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "second-value-5678" {
		t.Errorf("expected overwritten value, got %q", got)
	}
}

func TestDeleteRemovesRowAndPlaintextNeverOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	secret := "super-secret-value-that-should-never-touch-disk"
	if err := s.Set("SECRET", secret, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := s.Delete("SECRET")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatal("Delete returned false for existing credential")
	}

	if _, err := s.Get("SECRET"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The value is encrypted at rest and the delete path overwrites the
	// ciphertext, so the plaintext must not appear anywhere in the files.
	for _, suffix := range []string{"", "-wal", "-shm"} {
		data, err := os.ReadFile(path + suffix)
		if err != nil {
			continue
		}
		if bytes.Contains(data, []byte(secret)) {
			t.Errorf("plaintext found in %s%s", path, suffix)
		}
	}
}

func TestDeleteAbsentReturnsFalse(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.Delete("MISSING")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Error("Delete returned true for absent credential")
	}
}

func TestListMasksValues(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("ANTHROPIC_API_KEY", "sk-ant-api03-0123456789", "anthropic"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(infos))
	}
	info := infos[0]
	if info.Provider != "anthropic" {
		t.Errorf("provider = %q", info.Provider)
	}
	if info.MaskedValue == "sk-ant-api03-0123456789" {
		t.Error("List exposed the raw value")
	}
	if info.MaskedValue != "sk-a...6789" {
		t.Errorf("unexpected mask %q", info.MaskedValue)
	}
}

func TestExists(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.Exists("X")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists true for absent name")
	}
	if err := s.Set("X", "value-1234", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = s.Exists("X")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists false for present name")
	}
}

func TestRedactorReplacesStoredValues(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("SERPER_API_KEY", "serper-key-0123456789", "serper"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	r, err := s.NewRedactor()
	if err != nil {
		t.Fatalf("NewRedactor: %v", err)
	}
	out := r.Redact("calling with key serper-key-0123456789 now")
	if out != "calling with key [REDACTED:SERPER_API_KEY] now" {
		t.Errorf("Redact = %q", out)
	}
}

func TestSealOpenTamperDetected(t *testing.T) {
	key := make([]byte, keyLen)
	blob, err := seal(key, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	blob[len(blob)-1] ^= 0xff
	if _, err := open(key, blob); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt on tampered blob, got %v", err)
	}
}
