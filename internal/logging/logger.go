// Package logging provides the per-module structured logger. Every event
// is written as one JSONL line to a daily file under the logs directory
// and mirrored to the console. A query API reads the files back for
// diagnostics; the logger itself never depends on that read path.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ninjastack/ninja/internal/paths"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "message"
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Fields carries optional structured context for a log event. The well-known
// keys session_id, task_id, cli_name, and model are indexed by Query; any
// other key lands in the entry as-is.
type Fields map[string]any

// Logger writes structured JSONL events for one module.
type Logger struct {
	module  string
	dir     string
	console bool

	mu   sync.Mutex
	day  string
	file *os.File
	zl   zerolog.Logger

	redact func(string) string
}

// New creates a logger for the given module writing under the shared
// logs directory.
func New(module string) (*Logger, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return nil, err
	}
	return NewAt(module, dir, true)
}

// NewAt creates a logger writing daily files under dir. Console mirroring
// is optional so tests can keep output quiet.
func NewAt(module, dir string, console bool) (*Logger, error) {
	if err := paths.Ensure(dir); err != nil {
		return nil, err
	}
	l := &Logger{module: module, dir: dir, console: console}
	if err := l.rotate(time.Now().UTC()); err != nil {
		return nil, err
	}
	return l, nil
}

// SetRedactor installs a filter applied to every message before it is
// written. Used to keep credential values out of the log files.
func (l *Logger) SetRedactor(fn func(string) string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redact = fn
}

// rotate opens the daily file for now and rebuilds the zerolog writer.
// Caller must hold l.mu (or be the constructor).
func (l *Logger) rotate(now time.Time) error {
	day := now.Format("20060102")
	if day == l.day && l.file != nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	name := filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl", l.module, day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.day = day
	l.file = f

	var w zerolog.LevelWriter
	if l.console {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		w = zerolog.MultiLevelWriter(console, f)
	} else {
		w = zerolog.MultiLevelWriter(f)
	}
	l.zl = zerolog.New(w).With().Timestamp().Str("logger", l.module).Logger()
	return nil
}

func (l *Logger) emit(level zerolog.Level, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(time.Now().UTC()); err != nil {
		fmt.Fprintf(os.Stderr, "log rotate: %v\n", err)
		return
	}
	if l.redact != nil {
		msg = l.redact(msg)
	}
	ev := l.zl.WithLevel(level)
	for k, v := range fields {
		if s, ok := v.(string); ok && l.redact != nil {
			v = l.redact(s)
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields Fields) { l.emit(zerolog.DebugLevel, msg, fields) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields Fields) { l.emit(zerolog.InfoLevel, msg, fields) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields Fields) { l.emit(zerolog.WarnLevel, msg, fields) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields Fields) { l.emit(zerolog.ErrorLevel, msg, fields) }

// Close releases the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
