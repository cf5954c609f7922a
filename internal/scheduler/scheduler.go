// Package scheduler implements the priority-partitioned task scheduler
// (spec §4.3): four FIFO lanes (Critical..Low), a single background
// worker that polls lanes in priority order, and Immediate/Delayed/At/Cron
// submission policies. Grounded on the teacher's internal/cron/scheduler.go
// worker-loop idiom (functional options, Start/Stop, slog logging)
// generalized from its job-type dispatch into a pure priority-lane queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localmind/aegis/pkg/models"
)

// laneCount mirrors the four spec priorities, indexed Critical=0..Low=3.
const laneCount = 4

// WorkFunc is the unit of work a submitted task executes. A returned
// error moves the task to Failed; the worker continues regardless (spec
// §4.3 "Failure semantics").
type WorkFunc func(ctx context.Context) error

// PolicyKind selects when a submitted task becomes eligible to run.
type PolicyKind string

const (
	Immediate PolicyKind = "immediate"
	Delayed   PolicyKind = "delayed"
	At        PolicyKind = "at"
	Cron      PolicyKind = "cron"
)

// Policy is a scheduling policy (spec §4.3). Cron is accepted but, per
// spec §9 open question (b), fires once immediately rather than
// recurring — recurring work belongs to the cron engine (internal/cron),
// not this scheduler.
type Policy struct {
	Kind  PolicyKind
	Delay time.Duration
	At    time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler runs submitted work on four priority lanes via a single
// background worker.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*models.Task
	work   map[string]WorkFunc
	lanes  [laneCount]chan string
	notify chan struct{}

	logger    *slog.Logger
	started   bool
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New returns an idle Scheduler. Call Start to begin processing.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]*models.Task),
		work:   make(map[string]WorkFunc),
		notify: make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for i := range s.lanes {
		s.lanes[i] = make(chan string, 4096)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit enqueues work under PolicyKind Immediate.
func (s *Scheduler) Submit(name string, priority models.Priority, work WorkFunc) (string, error) {
	return s.SubmitWithPolicy(name, priority, Policy{Kind: Immediate}, work)
}

// SubmitWithPolicy registers work and applies the given policy. Delayed
// and At variants spawn a timer goroutine that enqueues once the deadline
// elapses, rechecking for cancellation first so a pre-deadline cancel
// wins the race (spec §4.3 "enqueue step rechecks Cancelled").
func (s *Scheduler) SubmitWithPolicy(name string, priority models.Priority, policy Policy, work WorkFunc) (string, error) {
	id := uuid.NewString()
	task := &models.Task{ID: id, Name: name, Priority: priority, Status: models.TaskPending, CreatedAt: time.Now()}

	s.mu.Lock()
	s.tasks[id] = task
	s.work[id] = work
	s.mu.Unlock()

	switch policy.Kind {
	case Delayed:
		go s.enqueueAfter(id, priority, policy.Delay)
	case At:
		go s.enqueueAfter(id, priority, time.Until(policy.At))
	default: // Immediate, Cron (fires once immediately per §9 open question)
		s.push(id, priority)
	}
	return id, nil
}

func (s *Scheduler) enqueueAfter(id string, priority models.Priority, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	task, ok := s.tasks[id]
	cancelled := ok && task.Status == models.TaskCancelled
	s.mu.Unlock()
	if !ok || cancelled {
		return
	}
	s.push(id, priority)
}

func (s *Scheduler) push(id string, priority models.Priority) {
	s.mu.Lock()
	if task, ok := s.tasks[id]; ok && task.Status == models.TaskPending {
		task.Status = models.TaskQueued
	}
	s.mu.Unlock()

	s.lanes[priority] <- id
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Cancel marks a task Cancelled; legal only while Pending or Queued (spec
// §3 invariant). Returns an error if the task is unknown or already
// running/terminal.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", id)
	}
	if task.Status != models.TaskPending && task.Status != models.TaskQueued {
		return fmt.Errorf("scheduler: task %q is not cancellable from state %s", id, task.Status)
	}
	task.Status = models.TaskCancelled
	return nil
}

// Status returns a snapshot of a task by id.
func (s *Scheduler) Status(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// AllTasks returns a snapshot of every task known to the scheduler.
func (s *Scheduler) AllTasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// Start launches the single background worker. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.shutdown = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Shutdown stops the worker and waits for it to exit. Tasks already
// Running are not interrupted; they observe cancellation only if their
// WorkFunc polls ctx.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.shutdown)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		id, ok := s.popNext()
		if ok {
			s.execute(ctx, id)
			continue
		}
		select {
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		case <-s.notify:
		}
	}
}

// popNext polls lanes in priority order (Critical first) and pops at most
// one task per call.
func (s *Scheduler) popNext() (string, bool) {
	for i := 0; i < laneCount; i++ {
		select {
		case id := <-s.lanes[i]:
			return id, true
		default:
		}
	}
	return "", false
}

func (s *Scheduler) execute(ctx context.Context, id string) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	work := s.work[id]
	if ok && task.Status == models.TaskCancelled {
		s.mu.Unlock()
		return
	}
	if ok {
		now := time.Now()
		task.Status = models.TaskRunning
		task.StartedAt = &now
	}
	s.mu.Unlock()
	if !ok || work == nil {
		return
	}

	err := work(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	task.CompletedAt = &now
	if err != nil {
		task.Status = models.TaskFailed
		task.Error = err.Error()
		s.logger.Warn("scheduler: task failed", "task_id", id, "name", task.Name, "error", err)
		return
	}
	task.Status = models.TaskCompleted
}
