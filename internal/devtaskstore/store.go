// Package devtaskstore persists long-running development task lifecycle
// records (spec §2 component O). Idiom — Store interface plus a
// defensive-copy-returning in-memory implementation — follows the
// teacher's internal/jobs/store.go (cloneJob pattern); adapted here to
// the spec's DevTask model instead of the teacher's async tool Job model.
package devtaskstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localmind/aegis/pkg/models"
)

// Store persists DevTask records.
type Store interface {
	Create(ctx context.Context, task *models.DevTask) error
	Update(ctx context.Context, task *models.DevTask) error
	Get(ctx context.Context, id string) (*models.DevTask, error)
	List(ctx context.Context) ([]*models.DevTask, error)
}

// MemoryStore keeps dev-task records in memory. Reads and list results
// are returned as defensive copies so a caller's mutation never corrupts
// the store's state.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.DevTask
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*models.DevTask)}
}

// Create inserts a new task, failing if the id already exists.
func (s *MemoryStore) Create(ctx context.Context, task *models.DevTask) error {
	if task == nil {
		return fmt.Errorf("devtaskstore: nil task")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("devtaskstore: task %q already exists", task.ID)
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Update overwrites an existing task's fields.
func (s *MemoryStore) Update(ctx context.Context, task *models.DevTask) error {
	if task == nil {
		return fmt.Errorf("devtaskstore: nil task")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		return fmt.Errorf("devtaskstore: task %q not found", task.ID)
	}
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get returns a defensive copy of a task by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.DevTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("devtaskstore: task %q not found", id)
	}
	return cloneTask(task), nil
}

// List returns defensive copies of every known task.
func (s *MemoryStore) List(ctx context.Context) ([]*models.DevTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DevTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func cloneTask(task *models.DevTask) *models.DevTask {
	if task == nil {
		return nil
	}
	clone := *task
	if task.Metadata != nil {
		clone.Metadata = make(map[string]any, len(task.Metadata))
		for k, v := range task.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
