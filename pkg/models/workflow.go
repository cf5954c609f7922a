package models

import "encoding/json"

// WorkflowStatus is a workflow run's lifecycle stage.
type WorkflowStatus string

const (
	WorkflowIdle      WorkflowStatus = "idle"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// WorkflowStep is one ordered step of a Workflow: an adapter/tool pair and
// its static parameters.
type WorkflowStep struct {
	Adapter string          `json:"adapter"`
	Tool    string          `json:"tool"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Workflow is an ordered sequence of adapter calls (spec §3). Steps run
// sequentially; results are captured per-step but not automatically
// chained into later steps' params.
type Workflow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Steps         []WorkflowStep `json:"steps"`
	Trigger       string         `json:"trigger,omitempty"`
	Enabled       bool           `json:"enabled"`
	Status        WorkflowStatus `json:"status"`
	ContinueOnErr bool           `json:"continue_on_error"`
}

// StepResult captures one step's outcome.
type StepResult struct {
	Step    WorkflowStep `json:"step"`
	Output  string       `json:"output,omitempty"`
	IsError bool         `json:"is_error,omitempty"`
}
