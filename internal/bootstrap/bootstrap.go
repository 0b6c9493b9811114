// Package bootstrap wires the shared runtime every ninja binary needs:
// directory layout, structured logger with credential redaction, the
// credential store, the typed config store, and the strategy registry.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ninjastack/ninja/internal/analyzer"
	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/credstore"
	"github.com/ninjastack/ninja/internal/daemon"
	"github.com/ninjastack/ninja/internal/driver"
	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/paths"
	"github.com/ninjastack/ninja/internal/strategy"
)

// Exit codes shared by every binary.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitEnvironment = 2
	ExitInternal    = 3
)

// Module bundles the runtime of one ninja binary.
type Module struct {
	Name     string
	Log      *logging.Logger
	Creds    *credstore.Store
	Config   *config.Store
	Registry *strategy.Registry
}

// Load builds the runtime for the named module. Console log mirroring
// writes to stderr, so it is safe for stdio MCP servers too.
func Load(name string, console bool) (*Module, error) {
	configDir, err := paths.ConfigDir()
	if err != nil {
		return nil, err
	}
	if err := paths.Ensure(configDir); err != nil {
		return nil, err
	}
	logsDir, err := paths.LogsDir()
	if err != nil {
		return nil, err
	}
	log, err := logging.NewAt(name, logsDir, console)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	credPath, err := paths.CredentialDB()
	if err != nil {
		log.Close()
		return nil, err
	}
	creds, err := credstore.Open(credPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if red, err := creds.NewRedactor(); err == nil {
		log.SetRedactor(red.Redact)
	} else {
		log.Warn("credential redaction disabled", logging.Fields{"error": err.Error()})
	}

	reg := strategy.NewRegistry()
	cfgFile, err := paths.ConfigFile()
	if err != nil {
		creds.Close()
		log.Close()
		return nil, err
	}

	return &Module{
		Name:     name,
		Log:      log,
		Creds:    creds,
		Config:   config.NewStore(cfgFile, reg.Names()),
		Registry: reg,
	}, nil
}

// Close releases the module's resources.
func (m *Module) Close() {
	if m.Creds != nil {
		_ = m.Creds.Close()
	}
	if m.Log != nil {
		_ = m.Log.Close()
	}
}

// Serve runs the MCP server on the selected transport until ctx ends.
func (m *Module) Serve(ctx context.Context, s *server.MCPServer, httpMode bool, host string, port int) error {
	if httpMode {
		m.Log.Info("serving over http/sse", logging.Fields{"host": host, "port": port})
		return daemon.ServeHTTP(ctx, s, host, port)
	}
	m.Log.Info("serving over stdio", nil)
	return daemon.ServeStdio(ctx, s, os.Stderr)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// exitError pins an explicit exit code onto an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// WithCode wraps err so CodeFor reports the given exit code.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// Usagef returns a user-error (exit 1) with a formatted message.
func Usagef(format string, args ...any) error {
	return WithCode(ExitUsage, fmt.Errorf(format, args...))
}

// CodeFor maps an error to the binary's exit code.
func CodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, config.ErrInvalid):
		return ExitUsage
	case errors.Is(err, driver.ErrBinaryNotFound), errors.Is(err, analyzer.ErrNoOperator):
		return ExitEnvironment
	default:
		return ExitInternal
	}
}
