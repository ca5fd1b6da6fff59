package saasmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
)

// Alert is one operator-facing condition.
type Alert struct {
	Severity enums.AlertSeverity `json:"severity"`
	Category string              `json:"category"`
	Message  string              `json:"message"`
	TenantID string              `json:"tenantId,omitempty"`
}

// AlertReport bundles alerts with a per-category roll-up.
type AlertReport struct {
	Alerts     []Alert                     `json:"alerts"`
	Summary    map[string]int              `json:"summary"`
	BySeverity map[enums.AlertSeverity]int `json:"bySeverity"`
	ComputedAt time.Time                   `json:"computedAt"`
}

const (
	categoryOverdueInvoice = "overdue_invoice"
	categoryTrialEnding    = "trial_ending"
	categoryErrorRate      = "error_rate"
)

// Alerts evaluates every alert condition against current state. It holds no
// state of its own; recomputing is always safe.
func (s *Service) Alerts(ctx context.Context) (*AlertReport, error) {
	now := s.Now().UTC()
	report := &AlertReport{
		Alerts:     []Alert{},
		Summary:    map[string]int{},
		BySeverity: map[enums.AlertSeverity]int{},
		ComputedAt: now,
	}

	if err := s.overdueAlerts(ctx, now, report); err != nil {
		return nil, err
	}
	if err := s.trialAlerts(ctx, now, report); err != nil {
		return nil, err
	}
	if err := s.errorRateAlert(ctx, now, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *AlertReport) add(alert Alert) {
	r.Alerts = append(r.Alerts, alert)
	r.Summary[alert.Category]++
	r.BySeverity[alert.Severity]++
}

// overdueAlerts flags invoices unpaid past the grace window as critical.
func (s *Service) overdueAlerts(ctx context.Context, now time.Time, report *AlertReport) error {
	cutoff := now.Add(-s.billing.GraceWindow)
	invoices, err := s.repo.ListOverdueInvoices(ctx, cutoff)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue invoices")
	}
	for i := range invoices {
		report.add(Alert{
			Severity: enums.AlertSeverityCritical,
			Category: categoryOverdueInvoice,
			Message: fmt.Sprintf("invoice %s overdue since %s, past grace window",
				invoices[i].ID, invoices[i].DueDate.Format("2006-01-02")),
		})
	}
	return nil
}

// trialAlerts warns on trials with little time left.
func (s *Service) trialAlerts(ctx context.Context, now time.Time, report *AlertReport) error {
	tenants, err := s.repo.ListTenantsByStatus(ctx, enums.TenantStatusTrial, 0)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trial tenants")
	}
	for i := range tenants {
		remaining := tenants[i].TrialDaysRemaining(now)
		if tenants[i].TrialEndsAt.Before(now) || remaining > s.alerts.TrialWarningDays {
			continue
		}
		report.add(Alert{
			Severity: enums.AlertSeverityWarning,
			Category: categoryTrialEnding,
			Message:  fmt.Sprintf("trial ends in %d day(s)", remaining),
			TenantID: tenants[i].ID.String(),
		})
	}
	return nil
}

// errorRateAlert compares trailing-24h error volume against the tenant-wide
// daily average of the prior 7 days.
func (s *Service) errorRateAlert(ctx context.Context, now time.Time, report *AlertReport) error {
	dayAgo := now.Add(-24 * time.Hour)
	recent, err := s.repo.CountErrorLogsBetween(ctx, dayAgo, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count recent errors")
	}
	if recent == 0 {
		return nil
	}

	weekAgo := dayAgo.Add(-7 * 24 * time.Hour)
	baselineTotal, err := s.repo.CountErrorLogsBetween(ctx, weekAgo, dayAgo)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count baseline errors")
	}

	// A quiet week with any sudden errors is itself worth a warning.
	baseline := float64(baselineTotal) / 7
	if baseline == 0 {
		report.add(Alert{
			Severity: enums.AlertSeverityWarning,
			Category: categoryErrorRate,
			Message:  fmt.Sprintf("%d errors in the last 24h against an empty baseline", recent),
		})
		return nil
	}

	ratio := float64(recent) / baseline
	switch {
	case ratio >= s.alerts.ErrorCriticalRatio:
		report.add(Alert{
			Severity: enums.AlertSeverityCritical,
			Category: categoryErrorRate,
			Message:  fmt.Sprintf("error volume %.1fx the 7-day baseline (%d in 24h)", ratio, recent),
		})
	case ratio >= s.alerts.ErrorWarningRatio:
		report.add(Alert{
			Severity: enums.AlertSeverityWarning,
			Category: categoryErrorRate,
			Message:  fmt.Sprintf("error volume %.1fx the 7-day baseline (%d in 24h)", ratio, recent),
		})
	}
	return nil
}
