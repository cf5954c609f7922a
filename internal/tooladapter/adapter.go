// Package tooladapter implements the uniform tool adapter contract (spec
// §4.7): discovery via Tools(), invocation via Execute(), and the
// lifecycle/health surface every concrete adapter (filesystem, shell,
// HTTP, ...) exposes identically to the agent runtime. Grounded almost
// 1:1 on the teacher's internal/agent/tool_registry.go (ToolRegistry,
// MaxToolNameLength/MaxToolParamsSize, Register/Execute/AsLLMTools).
package tooladapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/localmind/aegis/pkg/models"
)

// Tool invocation limits, carried over from the teacher's registry to
// bound resource exhaustion at the adapter boundary.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// Result is the outcome of a single tool invocation.
type Result struct {
	Content string
	IsError bool
}

// Adapter is the uniform contract every tool provider implements (spec
// §4.7). Execute must be safe for concurrent, re-entrant use: the runtime
// shares adapters by reference across ReAct loops.
type Adapter interface {
	ID() string
	Type() string
	Tools() []models.ToolDefinition
	Execute(ctx context.Context, toolName string, arguments json.RawMessage) (Result, error)
	RequiredAuth() (provider string, ok bool)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) models.AdapterHealth
	State() models.AdapterState
}

// Registry is an append-only collection of connected adapters. Tool
// lookups are resolved by scanning the registry for the first adapter
// whose tool set contains the name; registration order is preserved so
// first-wins collision resolution (spec §4.7/§9) is deterministic.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter. No deregistration is required during
// normal operation (spec §9 "Adapter registry is append-only at
// runtime").
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Adapters returns a snapshot of all registered adapters.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Tools returns the union of all Connected adapters' tool definitions,
// deduplicated by name with first-wins on collision.
func (r *Registry) Tools() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []models.ToolDefinition
	for _, a := range r.adapters {
		if a.State() != models.AdapterConnected {
			continue
		}
		for _, t := range a.Tools() {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			out = append(out, t)
		}
	}
	return out
}

// Resolve finds the first Connected adapter whose tool set contains name.
func (r *Registry) Resolve(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.State() != models.AdapterConnected {
			continue
		}
		for _, t := range a.Tools() {
			if t.Name == name {
				return a, true
			}
		}
	}
	return nil, false
}

// Execute resolves name to an adapter and invokes it, applying the same
// name/params size guards the teacher's registry enforces.
func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (Result, error) {
	if len(name) > MaxToolNameLength {
		return Result{Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength), IsError: true}, nil
	}
	if len(arguments) > MaxToolParamsSize {
		return Result{Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), IsError: true}, nil
	}
	adapter, ok := r.Resolve(name)
	if !ok {
		return Result{Content: "unknown tool: " + name, IsError: true}, nil
	}
	return adapter.Execute(ctx, name, arguments)
}
