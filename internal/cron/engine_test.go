package cron

import (
	"testing"
	"time"
)

func TestEngine_FastJobFires(t *testing.T) {
	e := NewEngine()
	if err := e.AddJob("fast", "fast job", "* * * * * *", "boom"); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	ch := make(chan Event, 32)
	e.Start(ch)
	defer e.Stop()

	select {
	case ev := <-ch:
		if ev.JobID != "fast" || ev.JobName != "fast job" || ev.Command != "boom" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a CronEvent within 3s")
	}
}

func TestNormalizeCronExpr_FiveAndSixFieldEquivalence(t *testing.T) {
	five, err := ParseExpression("30 9 * * 1-5")
	if err != nil {
		t.Fatalf("parse 5-field: %v", err)
	}
	six, err := ParseExpression("0 30 9 * * 1-5")
	if err != nil {
		t.Fatalf("parse 6-field: %v", err)
	}
	base := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	if five.Next(base) != six.Next(base) {
		t.Fatalf("5-field and 6-field schedules diverge: %v vs %v", five.Next(base), six.Next(base))
	}
}

func TestAddJob_InvalidExpression(t *testing.T) {
	e := NewEngine()
	if err := e.AddJob("bad", "bad job", "not a cron expr", "noop"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestDisableEnable_RecomputesNextRun(t *testing.T) {
	e := NewEngine()
	if err := e.AddJob("j", "j", "0 0 1 1 *", "noop"); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := e.DisableJob("j"); err != nil {
		t.Fatalf("DisableJob: %v", err)
	}
	if err := e.EnableJob("j"); err != nil {
		t.Fatalf("EnableJob: %v", err)
	}
	jobs := e.ListJobs()
	if len(jobs) != 1 || jobs[0].NextRun.IsZero() {
		t.Fatalf("expected recomputed NextRun, got %+v", jobs)
	}
}
