package orchestrator

import (
	"context"
	"errors"
	"testing"
)

func TestOrchestrator_RunsInDependencyOrder(t *testing.T) {
	o := New(4, nil)
	var order []string
	var mu chan struct{} = make(chan struct{}, 1)
	mu <- struct{}{}
	record := func(id string) {
		<-mu
		order = append(order, id)
		mu <- struct{}{}
	}

	tasks := []SubTask{
		{ID: "a", Work: func(ctx context.Context, _ map[string]SubTaskResult) (string, error) {
			record("a")
			return "a-out", nil
		}},
		{ID: "b", DependsOn: []string{"a"}, Work: func(ctx context.Context, results map[string]SubTaskResult) (string, error) {
			if results["a"].Output != "a-out" {
				t.Errorf("expected b to observe a's output, got %+v", results)
			}
			record("b")
			return "b-out", nil
		}},
	}

	results, err := o.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results["a"].Output != "a-out" || results["b"].Output != "b-out" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected a before b, got %v", order)
	}
}

func TestOrchestrator_FailedDependencyStillResolves(t *testing.T) {
	o := New(0, nil)
	tasks := []SubTask{
		{ID: "a", Work: func(ctx context.Context, _ map[string]SubTaskResult) (string, error) {
			return "", errors.New("a failed")
		}},
		{ID: "b", DependsOn: []string{"a"}, Work: func(ctx context.Context, results map[string]SubTaskResult) (string, error) {
			if results["a"].Err == nil {
				t.Error("expected b to observe a's failure")
			}
			return "b-out", nil
		}},
	}
	results, err := o.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results["b"].Output != "b-out" {
		t.Fatalf("expected b to still run: %+v", results)
	}
}

func TestOrchestrator_RejectsUnknownDependency(t *testing.T) {
	o := New(1, nil)
	_, err := o.Run(context.Background(), []SubTask{
		{ID: "a", DependsOn: []string{"missing"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestOrchestrator_RejectsCycle(t *testing.T) {
	o := New(1, nil)
	_, err := o.Run(context.Background(), []SubTask{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
}
