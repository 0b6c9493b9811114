package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeHTTP runs the MCP server over HTTP/SSE until ctx is cancelled.
// The event stream lives at /sse, client messages POST to /messages.
func ServeHTTP(ctx context.Context, s *server.MCPServer, host string, port int) error {
	sse := server.NewSSEServer(s,
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/messages"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(fmt.Sprintf("%s:%d", host, port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sse.Shutdown(shutdownCtx)
	}
}

// ServeStdio runs the MCP server over stdin/stdout until the stream
// closes or ctx is cancelled.
func ServeStdio(ctx context.Context, s *server.MCPServer, errOut io.Writer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(errOut, "[mcp] ", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
