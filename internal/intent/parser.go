// Package intent implements the optional two-tier fast-path intent
// parser (spec §4.8): a local keyword/prefix router, falling back to an
// LLM JSON-only classification when local confidence is below threshold.
// This sits above the agent runtime and may be skipped entirely by a
// caller that always routes through the ReAct loop.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/localmind/aegis/internal/llm"
)

// Source identifies which tier produced a Result.
type Source string

const (
	SourceRouter Source = "router"
	SourceLLM    Source = "llm"
)

// Result is a structured intent extraction.
type Result struct {
	Action     string         `json:"action"`
	Entities   map[string]any `json:"entities,omitempty"`
	Confidence float64        `json:"confidence"`
	Source     Source         `json:"-"`
}

// Rule is one keyword/prefix pattern the router matches against the
// start of a message.
type Rule struct {
	Prefix     string
	Action     string
	Confidence float64
}

// Parser is the two-tier parser: Rules first, LLM fallback second.
type Parser struct {
	Rules     []Rule
	Threshold float64
	Client    llm.Transport // optional; nil disables the LLM fallback tier
	Model     string
}

// New returns a Parser with the given rules and confidence threshold.
func New(rules []Rule, threshold float64) *Parser {
	return &Parser{Rules: rules, Threshold: threshold}
}

// Parse runs the fast router first; if no rule clears the threshold and an
// LLM client is configured, falls back to a JSON-only classification
// prompt.
func (p *Parser) Parse(ctx context.Context, message string) (*Result, bool) {
	if r, ok := p.route(message); ok {
		return r, true
	}
	if p.Client == nil {
		return nil, false
	}
	return p.parseWithLLM(ctx, message)
}

func (p *Parser) route(message string) (*Result, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	for _, rule := range p.Rules {
		if strings.HasPrefix(trimmed, strings.ToLower(rule.Prefix)) && rule.Confidence >= p.Threshold {
			return &Result{Action: rule.Action, Confidence: rule.Confidence, Source: SourceRouter}, true
		}
	}
	return nil, false
}

const llmSystemPrompt = `Classify the user's message into a structured intent. ` +
	`Respond with JSON only, no markdown fences: {"action": string, "entities": object, "confidence": number between 0 and 1}.`

func (p *Parser) parseWithLLM(ctx context.Context, message string) (*Result, bool) {
	resp, err := p.Client.Chat(ctx, llm.Request{
		Model:  p.Model,
		System: llmSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: message},
		},
	})
	if err != nil {
		return nil, false
	}
	raw := stripMarkdownFence(resp.Text)
	var parsed Result
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}
	parsed.Source = SourceLLM
	if parsed.Confidence < p.Threshold {
		return nil, false
	}
	return &parsed, true
}

// stripMarkdownFence removes an optional ```json ... ``` or ``` ... ```
// wrapper some models add around otherwise-valid JSON output.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
