// Package orchestrator implements master/worker decomposition (spec §4,
// component N): a master splits a request into sub-tasks with declared
// dependencies, and a worker pool dispatches each sub-task once its
// dependencies have completed. Reauthored to the spec's simpler
// dependency-graph contract; idiom (RWMutex-guarded maps, slog logging)
// follows the teacher's internal/multiagent package, which this does not
// carry wholesale since that package's supervisor/handoff model is a
// different, richer shape than the spec calls for.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// SubTask is one unit of decomposed work. DependsOn names other SubTask
// IDs that must complete (successfully or not) before this one may run.
type SubTask struct {
	ID        string
	DependsOn []string
	Work      func(ctx context.Context, results map[string]SubTaskResult) (string, error)
}

// SubTaskResult captures one sub-task's outcome.
type SubTaskResult struct {
	ID      string
	Output  string
	Err     error
}

// Orchestrator dispatches a dependency graph of sub-tasks across workers,
// running every sub-task whose dependencies have all resolved.
type Orchestrator struct {
	logger      *slog.Logger
	concurrency int
}

// New returns an Orchestrator that runs up to concurrency sub-tasks at
// once (0 or negative means unbounded).
func New(concurrency int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger, concurrency: concurrency}
}

// Run executes every sub-task in tasks, respecting DependsOn, and returns
// each one's result keyed by ID. A sub-task whose dependency failed still
// runs (spec gives workflows continue-on-error semantics; the
// orchestrator mirrors that — a failed dependency is still a resolved
// one) unless the context is cancelled first.
func (o *Orchestrator) Run(ctx context.Context, tasks []SubTask) (map[string]SubTaskResult, error) {
	if err := validateDAG(tasks); err != nil {
		return nil, err
	}

	byID := make(map[string]SubTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var mu sync.Mutex
	results := make(map[string]SubTaskResult, len(tasks))
	done := make(map[string]chan struct{}, len(tasks))
	for id := range byID {
		done[id] = make(chan struct{})
	}

	sem := make(chan struct{}, o.boundedConcurrency(len(tasks)))
	var wg sync.WaitGroup

	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, dep := range t.DependsOn {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					mu.Lock()
					results[t.ID] = SubTaskResult{ID: t.ID, Err: ctx.Err()}
					mu.Unlock()
					close(done[t.ID])
					return
				}
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			depResults := make(map[string]SubTaskResult, len(t.DependsOn))
			for _, dep := range t.DependsOn {
				depResults[dep] = results[dep]
			}
			mu.Unlock()

			output, err := t.Work(ctx, depResults)
			if err != nil {
				o.logger.Warn("orchestrator: sub-task failed", "id", t.ID, "error", err)
			}

			mu.Lock()
			results[t.ID] = SubTaskResult{ID: t.ID, Output: output, Err: err}
			mu.Unlock()
			close(done[t.ID])
		}()
	}

	wg.Wait()
	return results, nil
}

func (o *Orchestrator) boundedConcurrency(n int) int {
	if o.concurrency <= 0 || o.concurrency > n {
		if n == 0 {
			return 1
		}
		return n
	}
	return o.concurrency
}

// validateDAG rejects unknown dependencies and cycles up front so Run
// never deadlocks on a malformed graph.
func validateDAG(tasks []SubTask) error {
	byID := make(map[string]SubTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("orchestrator: sub-task %q depends on unknown %q", t.ID, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("orchestrator: dependency cycle detected at %q", id)
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return err
		}
	}
	return nil
}
