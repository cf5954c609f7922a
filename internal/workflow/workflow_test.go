package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/localmind/aegis/internal/tooladapter"
	"github.com/localmind/aegis/pkg/models"
)

type stubAdapter struct {
	id    string
	tools []models.ToolDefinition
	fail  map[string]bool
}

func (s *stubAdapter) ID() string                     { return s.id }
func (s *stubAdapter) Type() string                   { return "stub" }
func (s *stubAdapter) Tools() []models.ToolDefinition  { return s.tools }
func (s *stubAdapter) RequiredAuth() (string, bool)    { return "", false }
func (s *stubAdapter) Connect(context.Context) error   { return nil }
func (s *stubAdapter) Disconnect(context.Context) error { return nil }
func (s *stubAdapter) HealthCheck(context.Context) models.AdapterHealth {
	return models.HealthHealthy
}
func (s *stubAdapter) State() models.AdapterState { return models.AdapterConnected }

func (s *stubAdapter) Execute(ctx context.Context, toolName string, arguments json.RawMessage) (tooladapter.Result, error) {
	if s.fail[toolName] {
		return tooladapter.Result{Content: "boom", IsError: true}, errors.New("boom")
	}
	return tooladapter.Result{Content: "ok:" + toolName}, nil
}

func newRegistry(fail map[string]bool) *tooladapter.Registry {
	reg := tooladapter.NewRegistry()
	reg.Register(&stubAdapter{
		id: "a1",
		tools: []models.ToolDefinition{
			{Name: "step_one"}, {Name: "step_two"},
		},
		fail: fail,
	})
	return reg
}

func TestEngine_RunAllStepsSucceed(t *testing.T) {
	e := New(newRegistry(nil), nil)
	wf := &models.Workflow{
		Name: "wf1",
		Steps: []models.WorkflowStep{
			{Adapter: "a1", Tool: "step_one"},
			{Adapter: "a1", Tool: "step_two"},
		},
	}
	results, err := e.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(results))
	}
	if wf.Status != models.WorkflowCompleted {
		t.Fatalf("expected Completed, got %s", wf.Status)
	}
}

func TestEngine_HaltsOnFirstFailureWithoutContinueOnErr(t *testing.T) {
	e := New(newRegistry(map[string]bool{"step_one": true}), nil)
	wf := &models.Workflow{
		Name: "wf2",
		Steps: []models.WorkflowStep{
			{Adapter: "a1", Tool: "step_one"},
			{Adapter: "a1", Tool: "step_two"},
		},
	}
	results, err := e.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected execution to halt after step 1, got %d results", len(results))
	}
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected Failed, got %s", wf.Status)
	}
}

func TestEngine_ContinueOnErrRunsAllSteps(t *testing.T) {
	e := New(newRegistry(map[string]bool{"step_one": true}), nil)
	wf := &models.Workflow{
		Name:          "wf3",
		ContinueOnErr: true,
		Steps: []models.WorkflowStep{
			{Adapter: "a1", Tool: "step_one"},
			{Adapter: "a1", Tool: "step_two"},
		},
	}
	results, err := e.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both steps to run, got %d", len(results))
	}
	if !results[0].IsError || results[1].IsError {
		t.Fatalf("unexpected result error flags: %+v", results)
	}
	if wf.Status != models.WorkflowFailed {
		t.Fatalf("expected Failed status since one step errored, got %s", wf.Status)
	}
}

func TestEngine_CancelledContextStopsMidway(t *testing.T) {
	e := New(newRegistry(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wf := &models.Workflow{
		Name:  "wf4",
		Steps: []models.WorkflowStep{{Adapter: "a1", Tool: "step_one"}},
	}
	_, err := e.Run(ctx, wf)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if wf.Status != models.WorkflowCancelled {
		t.Fatalf("expected Cancelled, got %s", wf.Status)
	}
}
