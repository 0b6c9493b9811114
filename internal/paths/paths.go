// Package paths defines the on-disk layout shared by every ninja module:
// a config directory for durable state (config.json, credentials.db,
// migration artifacts) and a cache directory for disposable state
// (session records, logs, daemon pidfiles).
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "ninja"

// ConfigDir returns the user config directory for ninja, honoring the
// NINJA_CONFIG_DIR override. The directory is not created.
func ConfigDir() (string, error) {
	if dir := os.Getenv("NINJA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// CacheDir returns the user cache directory for ninja, honoring the
// NINJA_CACHE_DIR override.
func CacheDir() (string, error) {
	if dir := os.Getenv("NINJA_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// ConfigFile returns the path of the typed configuration document.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// CredentialDB returns the path of the encrypted credential database.
func CredentialDB() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.db"), nil
}

// BackupDir returns the directory for legacy env-file snapshots.
func BackupDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.backup"), nil
}

// MigrationsDir returns the directory for migration logs.
func MigrationsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "migrations"), nil
}

// LogsDir returns the directory for per-module JSONL logs.
func LogsDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// DaemonsDir returns the directory for daemon pidfiles and daemon logs.
func DaemonsDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemons"), nil
}

// SessionsDir returns the directory for persisted session records.
func SessionsDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// Ensure creates dir with mode 0700 if it does not already exist.
func Ensure(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
