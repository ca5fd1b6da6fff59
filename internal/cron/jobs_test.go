package cron

import (
	"context"
	"errors"
	"testing"
)

type fakeSweeper struct {
	changed int
	err     error
	calls   int
}

func (s *fakeSweeper) ExpireTrials(context.Context) (int, error)    { s.calls++; return s.changed, s.err }
func (s *fakeSweeper) SuspendOverdue(context.Context) (int, error)  { s.calls++; return s.changed, s.err }
func (s *fakeSweeper) ExpireCancelled(context.Context) (int, error) { s.calls++; return s.changed, s.err }
func (s *fakeSweeper) Scan(context.Context) (int, error)            { s.calls++; return s.changed, s.err }

func TestSweepJobsDelegateToEngines(t *testing.T) {
	sweeper := &fakeSweeper{changed: 2}
	logg := testLogger()

	builders := map[string]func() (Job, error){
		"trial_expiry":    func() (Job, error) { return NewTrialExpiryJob(sweeper, logg) },
		"overdue_suspend": func() (Job, error) { return NewOverdueSuspendJob(sweeper, logg) },
		"period_expiry":   func() (Job, error) { return NewPeriodExpiryJob(sweeper, logg) },
		"referral_scan":   func() (Job, error) { return NewReferralScanJob(sweeper, logg) },
	}

	for name, build := range builders {
		job, err := build()
		if err != nil {
			t.Fatalf("%s: failed to build: %v", name, err)
		}
		if job.Name() != name {
			t.Errorf("expected job name %q, got %q", name, job.Name())
		}
		if err := job.Run(context.Background()); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
	if sweeper.calls != 4 {
		t.Fatalf("expected 4 engine calls, got %d", sweeper.calls)
	}
}

func TestSweepJobPropagatesErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job, err := NewTrialExpiryJob(sweeper, testLogger())
	if err != nil {
		t.Fatalf("failed to build job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestJobConstructorsRequireEngine(t *testing.T) {
	logg := testLogger()
	if _, err := NewTrialExpiryJob(nil, logg); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewReferralScanJob(nil, logg); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewOverdueSuspendJob(&fakeSweeper{}, nil); err == nil {
		t.Error("expected error without logger")
	}
}
