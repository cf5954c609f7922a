package intent

import (
	"context"
	"testing"

	"github.com/localmind/aegis/internal/llm"
)

type stubTransport struct {
	text string
	err  error
}

func (s *stubTransport) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

func (s *stubTransport) StreamChat(ctx context.Context, req llm.Request, onText llm.TextCallback) (*llm.Response, error) {
	return s.Chat(ctx, req)
}

func (s *stubTransport) UpdateAPIKey(string)             {}
func (s *stubTransport) SwitchProvider(string, string, string) {}
func (s *stubTransport) CurrentProvider() string          { return "stub" }

func TestParser_RouterMatchesAboveThreshold(t *testing.T) {
	p := New([]Rule{{Prefix: "remind me", Action: "set_reminder", Confidence: 0.9}}, 0.5)
	res, ok := p.Parse(context.Background(), "Remind me to call Bob")
	if !ok {
		t.Fatal("expected router match")
	}
	if res.Action != "set_reminder" || res.Source != SourceRouter {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParser_FallsBackToLLMWhenRouterMisses(t *testing.T) {
	p := New(nil, 0.5)
	p.Client = &stubTransport{text: `{"action":"search","entities":{"q":"weather"},"confidence":0.8}`}
	res, ok := p.Parse(context.Background(), "what's the weather")
	if !ok {
		t.Fatal("expected LLM fallback to succeed")
	}
	if res.Action != "search" || res.Source != SourceLLM {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParser_StripsMarkdownFence(t *testing.T) {
	p := New(nil, 0.5)
	p.Client = &stubTransport{text: "```json\n{\"action\":\"x\",\"confidence\":0.9}\n```"}
	res, ok := p.Parse(context.Background(), "do x")
	if !ok {
		t.Fatal("expected success")
	}
	if res.Action != "x" {
		t.Fatalf("unexpected action: %+v", res)
	}
}

func TestParser_RejectsBelowThreshold(t *testing.T) {
	p := New(nil, 0.9)
	p.Client = &stubTransport{text: `{"action":"x","confidence":0.2}`}
	_, ok := p.Parse(context.Background(), "do x")
	if ok {
		t.Fatal("expected low-confidence result to be rejected")
	}
}

func TestParser_NoLLMConfiguredNoRouterMatch(t *testing.T) {
	p := New(nil, 0.5)
	_, ok := p.Parse(context.Background(), "anything")
	if ok {
		t.Fatal("expected no match without router or LLM")
	}
}
