package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/localmind/aegis/internal/llm/sse"
)

const anthropicBetaHeader = "oauth-2025-04-20"

// anthropicProvider implements Transport against the Anthropic Messages API.
// Non-streaming calls go through the official SDK (grounded on the
// teacher's internal/agent/providers/anthropic.go client construction);
// streaming is hand-rolled per spec §4.2/§6 since the frame-by-frame
// tool-call reassembly is the thing under specification.
type anthropicProvider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

func newAnthropicProvider(apiKey, baseURL, model string) *anthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &anthropicProvider{httpClient: http.DefaultClient, apiKey: apiKey, baseURL: baseURL, model: model}
}

// isOAuthToken applies the spec's heuristic (§4.2, open question (a)):
// tokens prefixed sk-ant-oat select bearer + beta-header auth.
func isOAuthToken(key string) bool {
	return strings.HasPrefix(key, "sk-ant-oat")
}

func (p *anthropicProvider) sdkClient() anthropic.Client {
	opts := []option.RequestOption{option.WithBaseURL(p.baseURL)}
	if isOAuthToken(p.apiKey) {
		opts = append(opts, option.WithAuthToken(p.apiKey), option.WithHeaderAdd("anthropic-beta", anthropicBetaHeader))
	} else {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	return anthropic.NewClient(opts...)
}

func (p *anthropicProvider) chat(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := p.sdkClient()
	params := anthropicMessageParams(req, p.model)
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	out := &Response{}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		out.InputTokens = int(msg.Usage.InputTokens)
		out.OutputTokens = int(msg.Usage.OutputTokens)
	}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += v.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: v.ID, Name: v.Name, Arguments: args})
		}
	}
	return out, nil
}

func (p *anthropicProvider) streamChat(ctx context.Context, req Request, onText TextCallback) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(anthropicWireRequest(req, p.model, true))
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if isOAuthToken(p.apiKey) {
		httpReq.Header.Set("authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("anthropic-beta", anthropicBetaHeader)
	} else {
		httpReq.Header.Set("x-api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &StreamError{Reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &RequestFailedError{Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, string(b))}
	}

	dec := sse.NewDecoder(resp.Body)
	acc := newStreamAccumulator()
	err = dec.All(func(ev sse.Event) error {
		return anthropicHandleEvent(ev, acc, onText)
	})
	if err != nil {
		return nil, &StreamError{Reason: err.Error()}
	}
	return acc.finalize()
}

// anthropicHandleEvent dispatches one decoded SSE event into the shared
// accumulator, matching the event names in spec §4.2.
func anthropicHandleEvent(ev sse.Event, acc *streamAccumulator, onText TextCallback) error {
	if ev.Data == "" {
		return nil
	}
	var payload struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
		Delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
		} `json:"delta"`
		ContentBlock struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content_block"`
	}
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		return &ParseFailedError{Reason: err.Error()}
	}
	switch payload.Type {
	case "content_block_start":
		if payload.ContentBlock.Type == "tool_use" {
			acc.setToolMeta(payload.Index, payload.ContentBlock.ID, payload.ContentBlock.Name)
		}
	case "content_block_delta":
		switch payload.Delta.Type {
		case "text_delta":
			acc.appendText(payload.Delta.Text)
			if onText != nil {
				onText(payload.Delta.Text)
			}
		case "input_json_delta":
			acc.appendArgs(payload.Index, payload.Delta.PartialJSON)
		}
	}
	return nil
}

func anthropicMessageParams(req Request, fallbackModel string) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = fallbackModel
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(defaultInt(req.MaxTokens, 4096)),
		Messages:  anthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &schema)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParamOfTool(schema, t.Name))
	}
	return params
}

// anthropicWireRequest builds the raw JSON body for the hand-rolled
// streaming path, mirroring anthropicMessageParams without going through
// the SDK's param types (keeps the custom decoder path fully independent
// of SDK internals, per spec §4.2's design note).
func anthropicWireRequest(req Request, fallbackModel string, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = fallbackModel
	}
	body := map[string]any{
		"model":      model,
		"max_tokens": defaultInt(req.MaxTokens, 4096),
		"messages":   anthropicWireMessages(req.Messages),
		"stream":     stream,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema any
			if len(t.InputSchema) > 0 {
				_ = json.Unmarshal(t.InputSchema, &schema)
			}
			tools = append(tools, map[string]any{"name": t.Name, "description": t.Description, "input_schema": schema})
		}
		body["tools"] = tools
	}
	return body
}

func anthropicWireMessages(msgs []Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			continue // hoisted to top-level system, per spec §4.2
		case RoleTool:
			out = append(out, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		case RoleAssistant:
			content := []map[string]any{}
			if m.Content != "" {
				content = append(content, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				content = append(content, map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input})
			}
			out = append(out, map[string]any{"role": "assistant", "content": content})
		default:
			out = append(out, map[string]any{"role": "user", "content": m.Content})
		}
	}
	return out
}

func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			continue
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
