package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Proxy bridges a stdio MCP client to a running HTTP/SSE daemon. It
// never starts the daemon itself; when the daemon is unreachable every
// request is answered with a JSON-RPC error instead.
type Proxy struct {
	// BaseURL is the daemon root, e.g. http://127.0.0.1:8100.
	BaseURL string
	HTTP    *http.Client
	In      io.Reader
	Out     io.Writer

	mu sync.Mutex // serializes writes to Out
}

// jsonrpcError is the degraded-mode response shape.
type jsonrpcError struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Run connects to the daemon's SSE stream and pumps messages both ways
// until ctx is cancelled or stdin closes. A failed connection switches
// to degraded mode: every stdin request gets an error response.
func (p *Proxy) Run(ctx context.Context) error {
	if p.HTTP == nil {
		p.HTTP = &http.Client{} // no timeout: the SSE stream is long-lived
	}

	messagesURL, events, err := p.connect(ctx)
	if err != nil {
		return p.runDegraded(ctx, fmt.Sprintf("daemon not reachable at %s: %v (start it with `ninja-daemon start`)", p.BaseURL, err))
	}

	// Server-to-client: forward every SSE message frame to stdout.
	go func() {
		for msg := range events {
			p.writeLine(msg)
		}
	}()

	// Client-to-server: POST each stdin line to the session endpoint.
	scanner := bufio.NewScanner(p.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := p.post(ctx, messagesURL, line); err != nil {
			p.writeError(line, fmt.Sprintf("forward request: %v", err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// connect opens the SSE stream and waits for the endpoint event that
// names the session's message URL. The returned channel yields the
// data payload of every subsequent message event.
func (p *Proxy) connect(ctx context.Context) (string, <-chan string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.BaseURL, "/")+"/sse", nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return "", nil, fmt.Errorf("HTTP %d from /sse", resp.StatusCode)
	}

	frames := make(chan sseFrame)
	go readSSE(resp.Body, frames)

	// The first frame must be the endpoint event.
	select {
	case f, ok := <-frames:
		if !ok {
			return "", nil, fmt.Errorf("event stream closed before the endpoint event")
		}
		if f.event != "endpoint" {
			return "", nil, fmt.Errorf("expected endpoint event, got %q", f.event)
		}
		endpoint, err := p.resolveEndpoint(f.data)
		if err != nil {
			return "", nil, err
		}
		events := make(chan string)
		go func() {
			defer close(events)
			for f := range frames {
				if f.event == "message" {
					events <- f.data
				}
			}
		}()
		return endpoint, events, nil
	case <-time.After(10 * time.Second):
		resp.Body.Close()
		return "", nil, fmt.Errorf("timed out waiting for the endpoint event")
	case <-ctx.Done():
		resp.Body.Close()
		return "", nil, ctx.Err()
	}
}

// resolveEndpoint turns the endpoint event payload (absolute or
// relative URL) into an absolute message URL.
func (p *Proxy) resolveEndpoint(raw string) (string, error) {
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("bad endpoint %q: %w", raw, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (p *Proxy) post(ctx context.Context, messagesURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, messagesURL)
	}
	return nil
}

// runDegraded answers every stdin request with a JSON-RPC error.
func (p *Proxy) runDegraded(ctx context.Context, reason string) error {
	scanner := bufio.NewScanner(p.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		p.writeError(line, reason)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (p *Proxy) writeError(request []byte, message string) {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(request, &envelope)

	resp := jsonrpcError{JSONRPC: "2.0", ID: envelope.ID}
	resp.Error.Code = -32000
	resp.Error.Message = message
	if data, err := json.Marshal(resp); err == nil {
		p.writeLine(string(data))
	}
}

func (p *Proxy) writeLine(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.Out, s)
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	event string
	data  string
}

// readSSE parses the text/event-stream format: "event:" and "data:"
// lines grouped by blank-line separators.
func readSSE(body io.ReadCloser, frames chan<- sseFrame) {
	defer body.Close()
	defer close(frames)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var current sseFrame
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.event != "" || len(data) > 0 {
				current.data = strings.Join(data, "\n")
				frames <- current
			}
			current = sseFrame{}
			data = nil
		case strings.HasPrefix(line, "event:"):
			current.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
