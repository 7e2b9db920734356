// Package claude implements the incident.Enricher interface on top of the
// Anthropic API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/gatekeeper/internal/incident"
)

const responseTokens = 1024

// SourceContext supplies the code surrounding a failing stack frame, when
// a source provider is configured. ok=false means no context is available.
type SourceContext interface {
	SurroundingCode(ctx context.Context, stackTrace string) (code string, ok bool)
}

// Client calls Claude to produce a summary, suggested fix and probable
// location for a freshly created incident.
type Client struct {
	client anthropic.Client
	model  string
	source SourceContext // nil disables source context
	logger log.Logger
}

// New creates a new Claude enrichment client.
func New(apiKey, model string, source SourceContext, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		source: source,
		logger: logger,
	}
}

// Analyze implements incident.Enricher. It makes a single model call and
// parses the JSON body out of the response, tolerating markdown fences.
func (c *Client) Analyze(ctx context.Context, message, stackTrace string) (*incident.Analysis, error) {
	var sourceCode string
	if c.source != nil {
		if code, ok := c.source.SurroundingCode(ctx, stackTrace); ok {
			sourceCode = code
		}
	}

	prompt := buildPrompt(message, stackTrace, sourceCode)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}

	c.logger.Info(ctx, "enrichment produced",
		"model", c.model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return analysis, nil
}

// buildPrompt asks for a strict three-field JSON object so the response
// can be merged directly into the incident record.
func buildPrompt(message, stackTrace, sourceCode string) string {
	var b strings.Builder

	b.WriteString(`You are an expert DevOps engineer. Analyze the following error log.

Error message: "`)
	b.WriteString(message)
	b.WriteString("\"\nStack trace: \"")
	if stackTrace != "" {
		b.WriteString(stackTrace)
	} else {
		b.WriteString("No stack trace provided")
	}
	b.WriteString("\"\n")

	if sourceCode != "" {
		b.WriteString("\nHere is the source code surrounding the failing line:\n\"\"\"\n")
		b.WriteString(sourceCode)
		b.WriteString("\n\"\"\"\n")
	}

	b.WriteString(`
Respond with a JSON object with exactly three fields:
1. "summary": a concise explanation of the root cause (max 2 sentences).
2. "fix": a specific technical suggestion; include the exact code snippet or command when applicable.
3. "location": the most likely file path and line causing the issue (e.g. "src/main.go:15"), inferred from the stack trace.

Do not include any other text, just the JSON.`)

	return b.String()
}

// parseAnalysis extracts the JSON object from a model response that may be
// wrapped in markdown fences or surrounded by prose.
func parseAnalysis(text string) (*incident.Analysis, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var a incident.Analysis
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if a.Summary == "" {
		return nil, fmt.Errorf("response missing summary")
	}
	return &a, nil
}
