// Package credstore implements encrypted at-rest storage of API keys.
// Values are sealed with AES-256-GCM under a machine-bound master key and
// kept in a single SQLite database with restrictive file modes.
package credstore

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an absent credential name.
var ErrNotFound = errors.New("credential not found")

// ErrDecrypt indicates a GCM tag mismatch, treated as tampering.
var ErrDecrypt = errors.New("credential decryption failed")

// Store is the process-wide credential store. Writes are serialized by a
// mutex; the single-connection SQLite pool serializes disk access.
type Store struct {
	mu   sync.Mutex
	conn *sql.DB
	key  []byte
}

// Info describes one stored credential without exposing its value.
type Info struct {
	Name        string  `json:"name"`
	Provider    string  `json:"provider,omitempty"`
	MaskedValue string  `json:"masked_value"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	LastUsed    *string `json:"last_used,omitempty"`
}

// Open creates or opens the credential database at path, runs migrations,
// and derives the master key from the persisted salt. The file is created
// with mode 0600 under a 0700 parent directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("chmod credential db: %w", err)
	}

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initKey(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

var gooseOnce sync.Once

func migrate(conn *sql.DB) error {
	var err error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationFS)
		goose.SetLogger(goose.NopLogger())
		err = goose.SetDialect("sqlite3")
	})
	if err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Up(conn, "migrations")
}

// initKey loads the encryption metadata row, creating it with a fresh salt
// on first use, then derives the master key.
func (s *Store) initKey() error {
	var salt []byte
	err := s.conn.QueryRow(`SELECT salt FROM encryption_meta WHERE id = 1`).Scan(&salt)
	if err == sql.ErrNoRows {
		salt, err = newSalt()
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := s.conn.Exec(
			`INSERT INTO encryption_meta (id, kdf, salt, created_at) VALUES (1, ?, ?, ?)`,
			kdfName, salt, now,
		); err != nil {
			return fmt.Errorf("insert encryption meta: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read encryption meta: %w", err)
	}
	s.key = deriveKey(salt)
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Set stores or overwrites a credential. Name and value must be non-empty.
func (s *Store) Set(name, value, provider string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("credential name must not be empty")
	}
	if value == "" {
		return fmt.Errorf("credential value must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := seal(s.key, []byte(value))
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var prov any
	if provider != "" {
		prov = provider
	}
	_, err = s.conn.Exec(
		`INSERT INTO credentials (name, value, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value,
		     provider = COALESCE(excluded.provider, credentials.provider),
		     updated_at = excluded.updated_at`,
		name, blob, prov, now, now,
	)
	if err != nil {
		return fmt.Errorf("store credential %q: %w", name, err)
	}
	return nil
}

// Get decrypts and returns a credential value and records last_used.
// The mutex covers the last_used write like every other mutation.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	err := s.conn.QueryRow(`SELECT value FROM credentials WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("read credential %q: %w", name, err)
	}

	plaintext, err := open(s.key, blob)
	if err != nil {
		return "", fmt.Errorf("credential %q: %w", name, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.conn.Exec(`UPDATE credentials SET last_used = ? WHERE name = ?`, now, name); err != nil {
		return "", fmt.Errorf("touch credential %q: %w", name, err)
	}
	return string(plaintext), nil
}

// Exists reports whether a credential with the given name is stored.
func (s *Store) Exists(name string) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM credentials WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check credential %q: %w", name, err)
	}
	return n > 0, nil
}

// List returns metadata for all credentials, values masked.
func (s *Store) List() ([]Info, error) {
	rows, err := s.conn.Query(
		`SELECT name, value, provider, created_at, updated_at, last_used
		 FROM credentials ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Info
	for rows.Next() {
		var (
			info     Info
			blob     []byte
			provider sql.NullString
		)
		if err := rows.Scan(&info.Name, &blob, &provider, &info.CreatedAt, &info.UpdatedAt, &info.LastUsed); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		if provider.Valid {
			info.Provider = provider.String
		}
		if plaintext, err := open(s.key, blob); err == nil {
			info.MaskedValue = mask(string(plaintext))
		} else {
			info.MaskedValue = "<undecryptable>"
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete overwrites the stored ciphertext with random bytes of equal
// length, then removes the row. Returns false if the name was absent.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}

	var blob []byte
	err = tx.QueryRow(`SELECT value FROM credentials WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		_ = tx.Rollback()
		return false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("read credential %q: %w", name, err)
	}

	junk := make([]byte, len(blob))
	if _, err := rand.Read(junk); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("generate overwrite bytes: %w", err)
	}
	if _, err := tx.Exec(`UPDATE credentials SET value = ? WHERE name = ?`, junk, name); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("overwrite credential %q: %w", name, err)
	}
	if _, err := tx.Exec(`DELETE FROM credentials WHERE name = ?`, name); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete credential %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return true, nil
}

// mask keeps at most the first and last four characters of a value.
func mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + "..." + v[len(v)-4:]
}
