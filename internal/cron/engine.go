package cron

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// engineParser accepts both the 5-field (minute hour dom month dow) and
// 6-field (seconds-prefixed) POSIX forms; 5-field input is normalised by
// prepending "0 " per spec §4.4.
var engineParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// normalizeCronExpr prepends a seconds field to a bare 5-field expression
// so both forms parse identically (spec §8 "Cron normalisation").
func normalizeCronExpr(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}

// ParseExpression validates a 5- or 6-field cron expression, rejecting it
// at add time rather than at fire time (spec §4.4).
func ParseExpression(expr string) (cron.Schedule, error) {
	sched, err := engineParser.Parse(normalizeCronExpr(expr))
	if err != nil {
		return nil, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	return sched, nil
}

// ScheduledJob is a single cron-triggered job (spec §3).
type ScheduledJob struct {
	ID       string
	Name     string
	Expr     string
	Command  string
	Enabled  bool
	LastRun  time.Time
	NextRun  time.Time
	schedule cron.Schedule
}

// Event is emitted exactly once per scheduled instant for an enabled job
// (spec §3 invariant, §4.4).
type Event struct {
	JobID    string
	JobName  string
	Command  string
	FiredAt  time.Time
}

// Engine is the cron firing loop: a 1s tick that scans enabled jobs whose
// NextRun has elapsed, emits one Event per instant, and advances NextRun
// to the strictly-next occurrence so a slow consumer never backlogs more
// than one unfired instant (spec §4.4). Grounded on the teacher's
// internal/cron/schedule.go Next() computation, generalized from its
// at/every/cron Schedule union into the spec's pure cron-expression
// engine.
type Engine struct {
	mu   sync.Mutex
	jobs map[string]*ScheduledJob

	now    func() time.Time
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine returns an idle Engine.
func NewEngine() *Engine {
	return &Engine{jobs: make(map[string]*ScheduledJob), now: time.Now}
}

// AddJob validates expr and registers a new job, computing its first
// NextRun from the current time. Invalid expressions are rejected here,
// never at fire time.
func (e *Engine) AddJob(id, name, expr, command string) error {
	schedule, err := ParseExpression(expr)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.jobs[id]; exists {
		return fmt.Errorf("cron: job %q already exists", id)
	}
	now := e.now()
	e.jobs[id] = &ScheduledJob{
		ID: id, Name: name, Expr: expr, Command: command, Enabled: true,
		NextRun: schedule.Next(now), schedule: schedule,
	}
	return nil
}

// RemoveJob deletes a job by id. No-op if the id is unknown.
func (e *Engine) RemoveJob(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, id)
}

// EnableJob enables a job and recomputes NextRun from the current time —
// no backfill of missed fires (spec §4.4 invariant).
func (e *Engine) EnableJob(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return fmt.Errorf("cron: job %q not found", id)
	}
	job.Enabled = true
	job.NextRun = job.schedule.Next(e.now())
	return nil
}

// DisableJob disables a job. An already-sent event for this job is not
// retroactively cancelled (spec §4.4 invariant).
func (e *Engine) DisableJob(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return fmt.Errorf("cron: job %q not found", id)
	}
	job.Enabled = false
	return nil
}

// ListJobs returns a snapshot of all registered jobs.
func (e *Engine) ListJobs() []ScheduledJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ScheduledJob, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, *j)
	}
	return out
}

// Start begins the 1s firing loop, sending Events on ch. Start returns
// immediately; the loop runs until Stop is called.
func (e *Engine) Start(ch chan<- Event) {
	e.stopCh = make(chan struct{})
	e.ticker = time.NewTicker(time.Second)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.stopCh:
				return
			case t := <-e.ticker.C:
				e.tick(t, ch)
			}
		}
	}()
}

// Stop halts the firing loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) tick(now time.Time, ch chan<- Event) {
	e.mu.Lock()
	var due []Event
	for _, job := range e.jobs {
		if !job.Enabled || job.NextRun.IsZero() || job.NextRun.After(now) {
			continue
		}
		due = append(due, Event{JobID: job.ID, JobName: job.Name, Command: job.Command, FiredAt: now})
		job.LastRun = now
		job.NextRun = job.schedule.Next(now) // strictly after now, skips any missed instants
	}
	e.mu.Unlock()

	for _, ev := range due {
		ch <- ev
	}
}
