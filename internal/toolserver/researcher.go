package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ninjastack/ninja/internal/config"
	"github.com/ninjastack/ninja/internal/credstore"
	"github.com/ninjastack/ninja/internal/executor"
	"github.com/ninjastack/ninja/internal/logging"
	"github.com/ninjastack/ninja/internal/plan"
)

const serperEndpoint = "https://google.serper.dev/search"

// researcherModelFallback is used when the config document does not
// name a researcher model.
const researcherModelFallback = "claude-haiku-4-0"

// Researcher exposes web research tools backed by the Serper search API
// and the Anthropic Messages API. API keys come from the credential
// store, never from the config document.
type Researcher struct {
	Config executor.ConfigSource
	Creds  *credstore.Store
	Log    *logging.Logger
	HTTP   *http.Client

	// newMessenger is swappable for tests; defaults to the real SDK.
	newMessenger func(apiKey string) messenger
}

// messenger is the slice of the Anthropic client the researcher uses.
type messenger interface {
	Complete(ctx context.Context, model, system, prompt string, maxTokens int64) (string, error)
}

type anthropicMessenger struct {
	client anthropic.Client
}

func (m *anthropicMessenger) Complete(ctx context.Context, model, system, prompt string, maxTokens int64) (string, error) {
	msg, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}

// NewResearcherServer wires the researcher tools onto a fresh MCP server.
func NewResearcherServer(r *Researcher) *server.MCPServer {
	if r.HTTP == nil {
		r.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	if r.newMessenger == nil {
		r.newMessenger = func(apiKey string) messenger {
			return &anthropicMessenger{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
		}
	}
	srv := server.NewMCPServer(
		"ninja-researcher",
		config.Version,
		server.WithToolCapabilities(true),
	)
	srv.AddTools(
		server.ServerTool{Tool: webSearchTool(), Handler: r.handleWebSearch},
		server.ServerTool{Tool: deepResearchTool(), Handler: r.handleDeepResearch},
		server.ServerTool{Tool: generateReportTool(), Handler: r.handleGenerateReport},
		server.ServerTool{Tool: factCheckTool(), Handler: r.handleFactCheck},
		server.ServerTool{Tool: summarizeSourcesTool(), Handler: r.handleSummarizeSources},
	)
	return srv
}

// --- Tool Definitions ---

func webSearchTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"researcher_web_search",
		"Search the web and return titles, links, and snippets.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"},
				"limit": {"type": "integer", "description": "Maximum results (default 10)"}
			},
			"required": ["query"]
		}`),
	)
}

func deepResearchTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"researcher_deep_research",
		"Search the web, then synthesize the results into an answer with cited sources.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"question": {"type": "string", "description": "Research question"},
				"limit": {"type": "integer", "description": "Maximum sources to consult (default 8)"}
			},
			"required": ["question"]
		}`),
	)
}

func generateReportTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"researcher_generate_report",
		"Generate a structured markdown report on a topic from the provided notes.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"topic": {"type": "string", "description": "Report topic"},
				"notes": {"type": "string", "description": "Raw notes and findings to organize"}
			},
			"required": ["topic", "notes"]
		}`),
	)
}

func factCheckTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"researcher_fact_check",
		"Check a claim against web search results and report a verdict with evidence.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"claim": {"type": "string", "description": "The claim to verify"}
			},
			"required": ["claim"]
		}`),
	)
}

func summarizeSourcesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"researcher_summarize_sources",
		"Summarize a list of source texts into key points.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sources": {"type": "array", "items": {"type": "string"}, "description": "Source texts to summarize"}
			},
			"required": ["sources"]
		}`),
	)
}

// --- Serper search ---

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperResponse struct {
	Organic []searchResult `json:"organic"`
}

func (r *Researcher) search(ctx context.Context, query string, limit int) ([]searchResult, *mcp.CallToolResult) {
	key, err := r.Creds.Get("SERPER_API_KEY")
	if err != nil {
		res, _ := errorJSON(plan.ErrAuth, "no SERPER_API_KEY credential: store one with `ninja-config set`")
		return nil, res
	}

	body, _ := json.Marshal(map[string]any{"q": query, "num": limit})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperEndpoint, bytes.NewReader(body))
	if err != nil {
		res, _ := errorJSON(plan.ErrInternal, "build search request: %v", err)
		return nil, res
	}
	req.Header.Set("X-API-KEY", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		res, _ := errorJSON(plan.ErrInternal, "search request: %v", err)
		return nil, res
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		res, _ := errorJSON(plan.ErrAuth, "search API rejected the key (HTTP %d)", resp.StatusCode)
		return nil, res
	case resp.StatusCode != http.StatusOK:
		res, _ := errorJSON(plan.ErrInternal, "search API returned HTTP %d", resp.StatusCode)
		return nil, res
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		res, _ := errorJSON(plan.ErrParseFailure, "decode search response: %v", err)
		return nil, res
	}
	if len(parsed.Organic) > limit {
		parsed.Organic = parsed.Organic[:limit]
	}
	return parsed.Organic, nil
}

// complete resolves the model and API key, then runs one completion.
func (r *Researcher) complete(ctx context.Context, system, prompt string, maxTokens int64) (string, *mcp.CallToolResult) {
	key, err := r.Creds.Get("ANTHROPIC_API_KEY")
	if err != nil {
		res, _ := errorJSON(plan.ErrAuth, "no ANTHROPIC_API_KEY credential: store one with `ninja-config set`")
		return "", res
	}
	model := researcherModelFallback
	if doc, err := r.Config.Load(); err == nil && doc.Researcher.Models.Default != "" {
		model = doc.Researcher.Models.Default
	}

	text, err := r.newMessenger(key).Complete(ctx, model, system, prompt, maxTokens)
	if err != nil {
		res, _ := errorJSON(plan.ErrInternal, "%v", err)
		return "", res
	}
	return text, nil
}

// --- Tool Handlers ---

type webSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (r *Researcher) handleWebSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args webSearchArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return invalidRequest("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	results, errRes := r.search(ctx, args.Query, limit)
	if errRes != nil {
		return errRes, nil
	}
	return resultJSON(map[string]any{"status": "ok", "results": results, "count": len(results)})
}

type deepResearchArgs struct {
	Question string `json:"question"`
	Limit    int    `json:"limit"`
}

func (r *Researcher) handleDeepResearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deepResearchArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Question) == "" {
		return invalidRequest("question is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 8
	}
	results, errRes := r.search(ctx, args.Question, limit)
	if errRes != nil {
		return errRes, nil
	}

	var sources strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sources, "[%d] %s\n%s\n%s\n\n", i+1, res.Title, res.Link, res.Snippet)
	}
	answer, errRes := r.complete(ctx,
		"You are a careful researcher. Answer the question using only the numbered sources. Cite sources as [n]. Say so when the sources do not support an answer.",
		fmt.Sprintf("Question: %s\n\nSources:\n%s", args.Question, sources.String()),
		1500,
	)
	if errRes != nil {
		return errRes, nil
	}
	return resultJSON(map[string]any{
		"status":  "ok",
		"answer":  answer,
		"sources": results,
	})
}

type generateReportArgs struct {
	Topic string `json:"topic"`
	Notes string `json:"notes"`
}

func (r *Researcher) handleGenerateReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args generateReportArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if args.Topic == "" || args.Notes == "" {
		return invalidRequest("topic and notes are required")
	}
	report, errRes := r.complete(ctx,
		"You write structured technical reports in markdown: a title, an executive summary, organized sections, and a conclusion. Use only the provided notes.",
		fmt.Sprintf("Topic: %s\n\nNotes:\n%s", args.Topic, args.Notes),
		3000,
	)
	if errRes != nil {
		return errRes, nil
	}
	return resultJSON(map[string]any{"status": "ok", "report": report})
}

type factCheckArgs struct {
	Claim string `json:"claim"`
}

func (r *Researcher) handleFactCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args factCheckArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if strings.TrimSpace(args.Claim) == "" {
		return invalidRequest("claim is required")
	}
	results, errRes := r.search(ctx, args.Claim, 6)
	if errRes != nil {
		return errRes, nil
	}

	var sources strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sources, "[%d] %s: %s\n", i+1, res.Title, res.Snippet)
	}
	verdict, errRes := r.complete(ctx,
		"You are a fact checker. Given a claim and search snippets, answer with one of: supported, contradicted, or unverifiable. Then explain in 2-3 sentences citing sources as [n].",
		fmt.Sprintf("Claim: %s\n\nEvidence:\n%s", args.Claim, sources.String()),
		800,
	)
	if errRes != nil {
		return errRes, nil
	}
	return resultJSON(map[string]any{
		"status":  "ok",
		"verdict": verdict,
		"sources": results,
	})
}

type summarizeSourcesArgs struct {
	Sources []string `json:"sources"`
}

func (r *Researcher) handleSummarizeSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args summarizeSourcesArgs
	if err := bindStrict(req, &args); err != nil {
		return invalidRequest("invalid arguments: %v", err)
	}
	if len(args.Sources) == 0 {
		return invalidRequest("sources is required")
	}
	var joined strings.Builder
	for i, src := range args.Sources {
		fmt.Fprintf(&joined, "--- Source %d ---\n%s\n\n", i+1, src)
	}
	summary, errRes := r.complete(ctx,
		"You are a concise technical summarizer. Distill the sources into key points as a markdown bullet list, noting disagreements between sources.",
		joined.String(),
		1200,
	)
	if errRes != nil {
		return errRes, nil
	}
	return resultJSON(map[string]any{"status": "ok", "summary": summary})
}
