package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/localmind/aegis/pkg/models"
)

func TestPriorityOrdering(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)

	record := func(name string) WorkFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}

	if _, err := s.Submit("low", models.PriorityLow, record("low")); err != nil {
		t.Fatalf("submit low: %v", err)
	}
	if _, err := s.Submit("critical", models.PriorityCritical, record("critical")); err != nil {
		t.Fatalf("submit critical: %v", err)
	}

	s.Start(ctx)
	defer s.Shutdown()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks to complete")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "critical" || order[1] != "low" {
		t.Fatalf("expected [critical low], got %v", order)
	}
}

func TestCancel_OnlyPendingOrQueued(t *testing.T) {
	s := New()
	id, _ := s.SubmitWithPolicy("delayed", models.PriorityNormal, Policy{Kind: Delayed, Delay: time.Hour}, func(ctx context.Context) error { return nil })

	if err := s.Cancel(id); err != nil {
		t.Fatalf("expected cancel to succeed while pending: %v", err)
	}
	task, ok := s.Status(id)
	if !ok || task.Status != models.TaskCancelled {
		t.Fatalf("expected Cancelled, got %+v", task)
	}
}

func TestFailedTaskRecordsError(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Shutdown()

	id, _ := s.Submit("boom", models.PriorityNormal, func(ctx context.Context) error { return errBoom })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, _ := s.Status(id)
		if task.Status == models.TaskFailed {
			if task.Error == "" {
				t.Fatal("expected failure reason to be recorded")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never transitioned to Failed")
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
