// Package config implements the typed hierarchical configuration document
// and its on-disk store. Secrets never live here; they belong to the
// credential store. The document is a single JSON file written atomically.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Models names the model used per task weight.
type Models struct {
	Default  string `json:"default,omitempty"`
	Quick    string `json:"quick,omitempty"`
	Heavy    string `json:"heavy,omitempty"`
	Parallel string `json:"parallel,omitempty"`
}

// ModuleConfig configures one MCP module (coder, researcher, secretary).
type ModuleConfig struct {
	Operator         string         `json:"operator,omitempty"`
	OperatorSettings map[string]any `json:"operator_settings,omitempty"`
	Models           Models         `json:"models"`
}

// Document is the whole typed configuration tree.
type Document struct {
	Coder      ModuleConfig `json:"coder"`
	Researcher ModuleConfig `json:"researcher"`
	Secretary  ModuleConfig `json:"secretary"`
}

// Default returns the configuration used when no document exists yet.
func Default() Document {
	return Document{
		Coder: ModuleConfig{
			Operator: "claude",
			Models:   Models{Default: "sonnet", Quick: "haiku", Heavy: "opus", Parallel: "sonnet"},
		},
	}
}

// Decode parses a document strictly: unknown keys are rejected.
func Decode(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("parse config document: %w", err)
	}
	return doc, nil
}

// Validate checks that every referenced operator has a registered strategy.
// Credential references are checked at run time, not here.
func (d Document) Validate(operators map[string]bool) error {
	for _, m := range []struct {
		name string
		cfg  ModuleConfig
	}{
		{"coder", d.Coder},
		{"researcher", d.Researcher},
		{"secretary", d.Secretary},
	} {
		if m.cfg.Operator == "" {
			continue
		}
		if !operators[m.cfg.Operator] {
			return fmt.Errorf("%s.operator %q has no registered strategy", m.name, m.cfg.Operator)
		}
	}
	return nil
}

// WithEnvOverrides returns a copy of the document with per-field
// environment overrides applied. Overrides never touch the file on disk.
func (d Document) WithEnvOverrides() Document {
	if bin := os.Getenv("NINJA_CODE_BIN"); bin != "" {
		d.Coder.Operator = bin
	}
	if m := os.Getenv("NINJA_CODER_MODEL"); m != "" {
		d.Coder.Models.Default = m
	}
	return d
}
