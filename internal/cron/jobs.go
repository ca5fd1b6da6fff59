package cron

import (
	"context"
	"fmt"

	"github.com/consertaja/billing/pkg/logger"
)

type trialSweeper interface {
	ExpireTrials(ctx context.Context) (int, error)
}

type overdueSweeper interface {
	SuspendOverdue(ctx context.Context) (int, error)
}

type periodSweeper interface {
	ExpireCancelled(ctx context.Context) (int, error)
}

type referralScanner interface {
	Scan(ctx context.Context) (int, error)
}

type sweepJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context) (int, error)
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	changed, err := j.run(ctx)
	ctx = j.logg.WithField(ctx, "changed", changed)
	if err != nil {
		// Partial progress still counts; per-tenant failures were already
		// logged and recorded by the engine.
		j.logg.Warn(ctx, j.name+" finished with errors")
		return err
	}
	j.logg.Info(ctx, j.name+" finished")
	return nil
}

func newSweepJob(name string, logg *logger.Logger, run func(ctx context.Context) (int, error)) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if run == nil {
		return nil, fmt.Errorf("sweep func required")
	}
	return &sweepJob{name: name, logg: logg, run: run}, nil
}

// NewTrialExpiryJob expires lapsed trials with no paid invoice.
func NewTrialExpiryJob(engine trialSweeper, logg *logger.Logger) (Job, error) {
	if engine == nil {
		return nil, fmt.Errorf("reconcile engine required")
	}
	return newSweepJob("trial_expiry", logg, engine.ExpireTrials)
}

// NewOverdueSuspendJob suspends tenants overdue past the grace window.
func NewOverdueSuspendJob(engine overdueSweeper, logg *logger.Logger) (Job, error) {
	if engine == nil {
		return nil, fmt.Errorf("reconcile engine required")
	}
	return newSweepJob("overdue_suspend", logg, engine.SuspendOverdue)
}

// NewPeriodExpiryJob retires cancelled tenants whose paid period elapsed.
func NewPeriodExpiryJob(engine periodSweeper, logg *logger.Logger) (Job, error) {
	if engine == nil {
		return nil, fmt.Errorf("reconcile engine required")
	}
	return newSweepJob("period_expiry", logg, engine.ExpireCancelled)
}

// NewReferralScanJob awards referral bonuses for completed qualify windows.
func NewReferralScanJob(engine referralScanner, logg *logger.Logger) (Job, error) {
	if engine == nil {
		return nil, fmt.Errorf("referral engine required")
	}
	return newSweepJob("referral_scan", logg, engine.Scan)
}
