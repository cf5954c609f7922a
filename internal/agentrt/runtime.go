// Package agentrt implements the agent runtime's ReAct loop (spec §4.1):
// a reason/act/observe controller that drives the LLM transport, dispatches
// tool calls through the adapter registry, and guarantees bounded turn
// counts, cancellation, and progress reporting. Grounded almost directly
// on the teacher's internal/agent/loop.go state machine (AgenticLoop,
// LoopConfig, streamPhase/executeToolsPhase/continuePhase), generalized to
// the spec's provider-unified internal/llm transport and
// internal/tooladapter registry instead of the teacher's own provider and
// tool-registry types.
package agentrt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/localmind/aegis/internal/llm"
	"github.com/localmind/aegis/internal/tooladapter"
	"github.com/localmind/aegis/pkg/models"
)

// Config bundles the per-run tunables (spec §4.1 "Context").
type Config struct {
	MaxTurns     int
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

// TextCallback streams incremental assistant text deltas during a turn.
type TextCallback func(delta string)

// ToolStartCallback fires just before a tool call is dispatched.
type ToolStartCallback func(call models.ToolCall)

// ToolEndCallback fires once a tool call's observation has been produced
// (successful or not — tool failures are observations, never loop
// terminations, per spec §4.1 "Failure semantics").
type ToolEndCallback func(call models.ToolCall, content string, isError bool)

// RunContext bundles everything one Run call needs: the borrowed LLM
// transport and adapter registry, this run's config, and the accumulating
// message list the loop appends to in place.
type RunContext struct {
	Client   llm.Transport
	Adapters *tooladapter.Registry
	Config   Config
	Messages []models.Message

	OnText      TextCallback
	OnToolStart ToolStartCallback
	OnToolEnd   ToolEndCallback
}

// Result is the terminal, successful outcome of Run.
type Result struct {
	Text         string
	TurnsUsed    int
	InputTokens  int
	OutputTokens int
}

// Run drives the reason/act/observe loop until the model emits a terminal
// text response or the turn cap is reached. Tool execution errors are
// folded into the message list as observations (never returned); only
// transport, stream-parse, and turn-cap failures terminate the loop with
// an error, per spec §4.1.
func Run(ctx context.Context, rc *RunContext) (*Result, error) {
	if rc.Config.MaxTurns <= 0 {
		rc.Config.MaxTurns = 1
	}

	turns := 0
	var totalIn, totalOut int

	for {
		if turns >= rc.Config.MaxTurns {
			return nil, ErrMaxTurnsExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := buildRequest(rc)
		resp, err := rc.Client.StreamChat(ctx, req, llm.TextCallback(rc.OnText))
		if err != nil {
			return nil, err
		}
		turns++
		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		if !resp.IsToolCalls() {
			rc.Messages = append(rc.Messages, models.Message{
				ID:        uuid.NewString(),
				Role:      models.RoleAssistant,
				Content:   resp.Text,
				CreatedAt: time.Now(),
			})
			return &Result{Text: resp.Text, TurnsUsed: turns, InputTokens: totalIn, OutputTokens: totalOut}, nil
		}

		toolCalls := make([]models.ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, models.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		rc.Messages = append(rc.Messages, models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		})

		for _, call := range toolCalls {
			if rc.OnToolStart != nil {
				rc.OnToolStart(call)
			}
			content, isError := executeOne(ctx, rc.Adapters, call)
			if rc.OnToolEnd != nil {
				rc.OnToolEnd(call, content, isError)
			}
			rc.Messages = append(rc.Messages, models.Message{
				ID:         uuid.NewString(),
				Role:       models.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				IsError:    isError,
				CreatedAt:  time.Now(),
			})
		}
	}
}

// executeOne resolves and runs a single tool call, converting any
// resolution/execution failure into a descriptive observation string
// rather than propagating it (spec §4.1 step 4.ii.1-2).
func executeOne(ctx context.Context, registry *tooladapter.Registry, call models.ToolCall) (content string, isError bool) {
	if registry == nil {
		return "no tool adapters registered", true
	}
	result, err := registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return err.Error(), true
	}
	return result.Content, result.IsError
}

// buildRequest converts the accumulating message list and config into a
// provider-unified llm.Request.
func buildRequest(rc *RunContext) llm.Request {
	req := llm.Request{
		Model:       rc.Config.Model,
		System:      rc.Config.SystemPrompt,
		MaxTokens:   rc.Config.MaxTokens,
		Temperature: rc.Config.Temperature,
	}
	if rc.Adapters != nil {
		for _, t := range rc.Adapters.Tools() {
			req.Tools = append(req.Tools, llm.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}
	for _, m := range rc.Messages {
		if m.Role == models.RoleSystem {
			if req.System == "" {
				req.System = m.Content
			}
			continue
		}
		toolCalls := make([]llm.ToolCall, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			args := tc.Arguments
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
		}
		req.Messages = append(req.Messages, llm.Message{
			Role:       llm.Role(m.Role),
			Content:    m.Content,
			ToolCalls:  toolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return req
}
