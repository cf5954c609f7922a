// Package workflow implements sequential, ordered step execution across
// tool adapters (spec §4, Workflow engine, component L). The teacher has
// no workflow engine of its own; this is reauthored in the teacher's idiom
// (functional options, slog logging) from the original Rust intent
// engine's step model and continue-on-error flag.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/localmind/aegis/internal/tooladapter"
	"github.com/localmind/aegis/pkg/models"
)

// Engine runs Workflow definitions step by step against a shared adapter
// registry.
type Engine struct {
	registry *tooladapter.Registry
	logger   *slog.Logger
}

// New returns an Engine bound to registry.
func New(registry *tooladapter.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, logger: logger}
}

// Run executes every step of wf in order, capturing one StepResult per
// step. When wf.ContinueOnErr is false, the first failing step halts
// execution and the workflow's Status becomes Failed; when true, every
// step runs regardless and Status is Failed if any step errored,
// Completed otherwise.
func (e *Engine) Run(ctx context.Context, wf *models.Workflow) ([]models.StepResult, error) {
	wf.Status = models.WorkflowRunning
	results := make([]models.StepResult, 0, len(wf.Steps))
	var anyError bool

	for _, step := range wf.Steps {
		select {
		case <-ctx.Done():
			wf.Status = models.WorkflowCancelled
			return results, ctx.Err()
		default:
		}

		result, err := e.runStep(ctx, step)
		results = append(results, result)
		if result.IsError {
			anyError = true
			e.logger.Warn("workflow: step failed", "workflow", wf.Name, "adapter", step.Adapter, "tool", step.Tool, "error", err)
			if !wf.ContinueOnErr {
				wf.Status = models.WorkflowFailed
				return results, nil
			}
		}
	}

	if anyError {
		wf.Status = models.WorkflowFailed
	} else {
		wf.Status = models.WorkflowCompleted
	}
	return results, nil
}

func (e *Engine) runStep(ctx context.Context, step models.WorkflowStep) (models.StepResult, error) {
	if e.registry == nil {
		return models.StepResult{Step: step, Output: "no adapter registry configured", IsError: true}, fmt.Errorf("workflow: no adapter registry configured")
	}
	res, err := e.registry.Execute(ctx, step.Tool, step.Params)
	if err != nil {
		return models.StepResult{Step: step, Output: err.Error(), IsError: true}, err
	}
	return models.StepResult{Step: step, Output: res.Content, IsError: res.IsError}, nil
}
