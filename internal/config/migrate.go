package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CredentialSink is where migrated secrets go. Satisfied by the
// credential store.
type CredentialSink interface {
	Set(name, value, provider string) error
}

// MigrationReport records what a legacy migration did. It is written as
// JSON under the migrations directory.
type MigrationReport struct {
	MigratedAt      string   `json:"migrated_at"`
	SourceFile      string   `json:"source_file"`
	BackupFile      string   `json:"backup_file"`
	CredentialNames []string `json:"credential_names"`
	ConfigKeys      []string `json:"config_keys"`
	SkippedLines    []string `json:"skipped_lines,omitempty"`
	SkippedKeys     []string `json:"skipped_keys,omitempty"`
}

// secretSuffixes classify env keys whose values belong in the credential
// store, never in the JSON document.
var secretSuffixes = []string{"_API_KEY", "_KEY", "_TOKEN", "_SECRET", "_PASSWORD"}

// providerPrefixes maps env key prefixes to credential providers.
var providerPrefixes = map[string]string{
	"OPENROUTER": "openrouter",
	"ANTHROPIC":  "anthropic",
	"OPENAI":     "openai",
	"GOOGLE":     "google",
	"GEMINI":     "google",
	"PERPLEXITY": "perplexity",
	"SERPER":     "serper",
	"ZAI":        "zai",
}

// configKeyTable maps legacy env keys onto document fields.
var configKeyTable = map[string]func(*Document, string){
	"NINJA_CODE_BIN":         func(d *Document, v string) { d.Coder.Operator = v },
	"NINJA_CODER_MODEL":      func(d *Document, v string) { d.Coder.Models.Default = v },
	"NINJA_QUICK_MODEL":      func(d *Document, v string) { d.Coder.Models.Quick = v },
	"NINJA_HEAVY_MODEL":      func(d *Document, v string) { d.Coder.Models.Heavy = v },
	"NINJA_PARALLEL_MODEL":   func(d *Document, v string) { d.Coder.Models.Parallel = v },
	"NINJA_RESEARCHER_MODEL": func(d *Document, v string) { d.Researcher.Models.Default = v },
	"NINJA_SECRETARY_MODEL":  func(d *Document, v string) { d.Secretary.Models.Default = v },
}

// MigrateFromLegacy runs the one-shot legacy env-file migration. It is a
// no-op when the JSON document already exists or no env file is present.
// On success the env file is renamed with a .migrated suffix so a second
// run changes nothing.
func (s *Store) MigrateFromLegacy(envPath, backupDir, reportDir string, creds CredentialSink) (*MigrationReport, error) {
	if s.Exists() {
		return nil, nil
	}
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("read legacy env file: %w", err)
	}

	// Back up the original before touching anything.
	stamp := time.Now().UTC().Format("20060102-150405")
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	backupPath := filepath.Join(backupDir, filepath.Base(envPath)+"."+stamp)
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("back up env file: %w", err)
	}

	report := &MigrationReport{
		MigratedAt: time.Now().UTC().Format(time.RFC3339),
		SourceFile: envPath,
		BackupFile: backupPath,
	}

	doc := Default()
	for i, line := range strings.Split(string(data), "\n") {
		key, value, ok, reason := parseEnvLine(line)
		if !ok {
			if reason != "" {
				report.SkippedLines = append(report.SkippedLines, fmt.Sprintf("line %d: %s", i+1, reason))
			}
			continue
		}

		if IsSecretKey(key) {
			if err := creds.Set(key, value, InferProvider(key)); err != nil {
				return nil, fmt.Errorf("migrate credential %s: %w", key, err)
			}
			report.CredentialNames = append(report.CredentialNames, key)
			continue
		}

		if apply, known := configKeyTable[key]; known {
			apply(&doc, value)
			report.ConfigKeys = append(report.ConfigKeys, key)
		} else {
			report.SkippedKeys = append(report.SkippedKeys, key)
		}
	}

	if err := s.Save(doc); err != nil {
		return nil, fmt.Errorf("save migrated config: %w", err)
	}
	if err := os.Rename(envPath, envPath+".migrated"); err != nil {
		return nil, fmt.Errorf("rename migrated env file: %w", err)
	}

	if err := os.MkdirAll(reportDir, 0o700); err != nil {
		return nil, fmt.Errorf("create migrations dir: %w", err)
	}
	reportData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal migration report: %w", err)
	}
	reportPath := filepath.Join(reportDir, "legacy-env-"+stamp+".json")
	if err := os.WriteFile(reportPath, append(reportData, '\n'), 0o600); err != nil {
		return nil, fmt.Errorf("write migration report: %w", err)
	}

	return report, nil
}

// parseEnvLine parses one KEY=VALUE line, honoring an optional "export "
// prefix, single/double quotes, and # comments. ok is false for blank and
// comment lines (reason empty) and for malformed lines (reason set).
func parseEnvLine(line string) (key, value string, ok bool, reason string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, ""
	}
	line = strings.TrimPrefix(line, "export ")

	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", "", false, "no KEY=VALUE separator"
	}
	key = strings.TrimSpace(line[:eq])
	raw := strings.TrimSpace(line[eq+1:])

	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false, "malformed key"
	}

	switch {
	case len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"':
		value = raw[1 : len(raw)-1]
	case len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'':
		value = raw[1 : len(raw)-1]
	default:
		// Unquoted: a trailing comment is stripped.
		if idx := strings.Index(raw, " #"); idx >= 0 {
			raw = strings.TrimSpace(raw[:idx])
		}
		value = raw
	}
	if value == "" {
		return "", "", false, "empty value"
	}
	return key, value, true, ""
}

// IsSecretKey reports whether an env-style key names a secret. Secret
// values belong in the credential store, never in the JSON document.
func IsSecretKey(key string) bool {
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// InferProvider guesses the credential provider from the key prefix.
func InferProvider(key string) string {
	for prefix, provider := range providerPrefixes {
		if strings.HasPrefix(key, prefix) {
			return provider
		}
	}
	return "unknown"
}
