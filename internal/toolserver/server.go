// Package toolserver builds the per-module MCP servers: the tool
// catalogues, their JSON schemas, and the request handlers. Every tool
// responds with a single text content item whose body is a JSON object.
package toolserver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ninjastack/ninja/internal/plan"
)

// bindStrict decodes the call arguments into v, rejecting unknown
// fields. BindArguments silently drops keys the schema does not name,
// which hides caller typos like "alowed_globs".
func bindStrict(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorBody is the JSON payload for a failed tool call.
type errorBody struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorJSON returns a structured error with a stable kind string. The
// result is still a text content item; IsError marks it for the client.
func errorJSON(kind plan.ErrorKind, format string, args ...any) (*mcp.CallToolResult, error) {
	body := errorBody{
		Status:    "error",
		ErrorKind: string(kind),
		Message:   fmt.Sprintf(format, args...),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return mcp.NewToolResultError(body.Message), nil
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = true
	return res, nil
}

// invalidRequest is the shorthand for schema and path rejections.
func invalidRequest(format string, args ...any) (*mcp.CallToolResult, error) {
	return errorJSON(plan.ErrInvalidRequest, format, args...)
}
