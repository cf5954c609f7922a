package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/localmind/aegis/internal/llm/sse"
)

// openaiProvider implements Transport against the OpenAI Chat Completions
// API. Non-streaming calls go through the go-openai SDK (grounded on the
// teacher's internal/agent/providers/openai.go); streaming is hand-rolled
// per spec §4.2/§6, decoding `data: {...}` frames terminated by
// `data: [DONE]` with our own sse.Decoder.
type openaiProvider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

func newOpenAIProvider(apiKey, baseURL, model string) *openaiProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openaiProvider{httpClient: http.DefaultClient, apiKey: apiKey, baseURL: baseURL, model: model}
}

func (p *openaiProvider) sdkClient() *openai.Client {
	cfg := openai.DefaultConfig(p.apiKey)
	cfg.BaseURL = p.baseURL
	return openai.NewClientWithConfig(cfg)
}

func (p *openaiProvider) chat(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := p.sdkClient()
	resp, err := client.CreateChatCompletion(ctx, openaiChatRequest(req, p.model))
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return &Response{}, nil
	}
	choice := resp.Choices[0]
	out := &Response{
		Text:         choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)})
	}
	return out, nil
}

func (p *openaiProvider) streamChat(ctx context.Context, req Request, onText TextCallback) (*Response, error) {
	if p.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := json.Marshal(openaiWireRequest(req, p.model, true))
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &RequestFailedError{Reason: err.Error()}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", "Bearer "+p.apiKey)

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
		return openaiHandleEvent(ev, acc, onText)
	})
	if err != nil {
		return nil, &StreamError{Reason: err.Error()}
	}
	return acc.finalize()
}

func openaiHandleEvent(ev sse.Event, acc *streamAccumulator, onText TextCallback) error {
	data := strings.TrimSpace(ev.Data)
	if data == "" {
		return nil
	}
	if data == "[DONE]" {
		return nil
	}
	var payload struct {
		Choices []struct {
			Delta struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Index    int    `json:"index"`
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return &ParseFailedError{Reason: err.Error()}
	}
	for _, choice := range payload.Choices {
		if choice.Delta.Content != "" {
			acc.appendText(choice.Delta.Content)
			if onText != nil {
				onText(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc.setToolMeta(tc.Index, tc.ID, tc.Function.Name)
			if tc.Function.Arguments != "" {
				acc.appendArgs(tc.Index, tc.Function.Arguments)
			}
		}
	}
	return nil
}

func openaiChatRequest(req Request, fallbackModel string) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = fallbackModel
	}
	out := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: defaultInt(req.MaxTokens, 4096),
		Messages:  openaiMessages(req),
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	for _, t := range req.Tools {
		var schema any
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &schema)
		}
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func openaiMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: m.Content, ToolCallID: m.ToolCallID})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

// openaiWireRequest mirrors openaiChatRequest as a raw JSON body for the
// hand-rolled streaming path (see anthropicWireRequest for rationale).
func openaiWireRequest(req Request, fallbackModel string, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = fallbackModel
	}
	msgs := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		entry := map[string]any{"role": string(m.Role), "content": m.Content}
		if m.Role == RoleTool {
			entry["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": string(tc.Arguments),
					},
				})
			}
			entry["tool_calls"] = calls
		}
		msgs = append(msgs, entry)
	}
	body := map[string]any{
		"model":      model,
		"max_tokens": defaultInt(req.MaxTokens, 4096),
		"messages":   msgs,
		"stream":     stream,
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
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  schema,
				},
			})
		}
		body["tools"] = tools
	}
	return body
}
