package agentrt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/localmind/aegis/internal/llm"
	"github.com/localmind/aegis/internal/tooladapter"
	"github.com/localmind/aegis/pkg/models"
)

// stubTransport scripts a fixed sequence of responses, one per StreamChat
// call, mirroring spec §8 scenario 1/2's "model stub".
type stubTransport struct {
	responses []*llm.Response
	calls     int
}

func (s *stubTransport) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return s.StreamChat(ctx, req, nil)
}

func (s *stubTransport) StreamChat(ctx context.Context, req llm.Request, onText llm.TextCallback) (*llm.Response, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func (s *stubTransport) UpdateAPIKey(string)                  {}
func (s *stubTransport) SwitchProvider(string, string, string) {}
func (s *stubTransport) CurrentProvider() string              { return "stub" }

// fsAdapter is a minimal filesystem adapter exposing fs_list_directory,
// matching spec §8 scenario 1.
type fsAdapter struct{}

func (fsAdapter) ID() string   { return "filesystem" }
func (fsAdapter) Type() string { return "filesystem" }
func (fsAdapter) Tools() []models.ToolDefinition {
	return []models.ToolDefinition{{Name: "fs_list_directory", Description: "list a directory"}}
}
func (fsAdapter) Execute(ctx context.Context, name string, args json.RawMessage) (tooladapter.Result, error) {
	return tooladapter.Result{Content: "a.txt, b.txt"}, nil
}
func (fsAdapter) RequiredAuth() (string, bool)            { return "", false }
func (fsAdapter) Connect(ctx context.Context) error       { return nil }
func (fsAdapter) Disconnect(ctx context.Context) error    { return nil }
func (fsAdapter) HealthCheck(ctx context.Context) models.AdapterHealth { return models.HealthHealthy }
func (fsAdapter) State() models.AdapterState              { return models.AdapterConnected }

func newRegistry() *tooladapter.Registry {
	r := tooladapter.NewRegistry()
	r.Register(fsAdapter{})
	return r
}

func TestRun_ToolLoop(t *testing.T) {
	transport := &stubTransport{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "fs_list_directory", Arguments: json.RawMessage(`{"path":"/tmp"}`)}}},
		{Text: "here are the files: a.txt, b.txt"},
	}}
	rc := &RunContext{
		Client:   transport,
		Adapters: newRegistry(),
		Config:   Config{MaxTurns: 5},
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: ""},
			{Role: models.RoleUser, Content: "list files under /tmp"},
		},
	}

	result, err := Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.TurnsUsed != 2 {
		t.Fatalf("expected 2 turns used, got %d", result.TurnsUsed)
	}
	if result.Text != "here are the files: a.txt, b.txt" {
		t.Fatalf("unexpected final text: %q", result.Text)
	}

	want := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant}
	if len(rc.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(rc.Messages))
	}
	for i, role := range want {
		if rc.Messages[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, rc.Messages[i].Role)
		}
	}
	if rc.Messages[2].ToolCalls[0].ID != "t1" {
		t.Fatalf("expected tool-call id t1, got %q", rc.Messages[2].ToolCalls[0].ID)
	}
	if rc.Messages[3].ToolCallID != "t1" {
		t.Fatalf("expected tool-result id t1, got %q", rc.Messages[3].ToolCallID)
	}
}

func TestRun_MaxTurnsExceeded(t *testing.T) {
	transport := &stubTransport{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "fs_list_directory", Arguments: json.RawMessage(`{}`)}}},
	}}
	rc := &RunContext{
		Client:   transport,
		Adapters: newRegistry(),
		Config:   Config{MaxTurns: 5},
		Messages: []models.Message{{Role: models.RoleUser, Content: "loop forever"}},
	}

	_, err := Run(context.Background(), rc)
	if !errors.Is(err, ErrMaxTurnsExceeded) {
		t.Fatalf("expected ErrMaxTurnsExceeded, got %v", err)
	}
	if transport.calls != 5 {
		t.Fatalf("expected exactly 5 LLM requests before failing, got %d", transport.calls)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	transport := &stubTransport{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "does_not_exist", Arguments: json.RawMessage(`{}`)}}},
		{Text: "ok"},
	}}
	rc := &RunContext{
		Client:   transport,
		Adapters: newRegistry(),
		Config:   Config{MaxTurns: 5},
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	}
	result, err := Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	toolResult := rc.Messages[2]
	if !toolResult.IsError {
		t.Fatalf("expected unknown-tool observation to be marked as error")
	}
}
