package credstore

import (
	"net/url"
	"strings"
)

// Redactor replaces known credential values with [REDACTED:name]
// placeholders before text reaches any log or response stream.
type Redactor struct {
	replacements map[string]string
}

// NewRedactor builds a Redactor from every value currently in the store.
// Both the raw and URL-encoded variants of each value are covered.
func (s *Store) NewRedactor() (*Redactor, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	r := &Redactor{replacements: make(map[string]string)}
	for _, info := range infos {
		value, err := s.Get(info.Name)
		if err != nil {
			continue // undecryptable values cannot leak in cleartext
		}
		if len(value) < 4 {
			continue // too short, false-positive risk outweighs the leak risk
		}
		r.replacements[value] = "[REDACTED:" + info.Name + "]"
		if encoded := url.QueryEscape(value); encoded != value {
			r.replacements[encoded] = "[REDACTED:" + info.Name + ":urlencoded]"
		}
	}
	return r, nil
}

// Redact replaces all known credential values in input. With an empty
// dictionary it is a no-op passthrough.
func (r *Redactor) Redact(input string) string {
	if r == nil || len(r.replacements) == 0 {
		return input
	}
	out := input
	for value, placeholder := range r.replacements {
		out = strings.ReplaceAll(out, value, placeholder)
	}
	return out
}
