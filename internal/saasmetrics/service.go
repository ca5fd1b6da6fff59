package saasmetrics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/internal/referral"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type referralStats interface {
	Stats(ctx context.Context) (*referral.Stats, error)
}

// ServiceParams groups dependencies for the metrics engine.
type ServiceParams struct {
	Repo     ledger.Repository
	Referral referralStats
	Billing  config.BillingConfig
	Alerts   config.AlertsConfig
	Logger   *logger.Logger
}

// Service derives business health numbers and operator alerts. It is a pure
// read side; nothing here ever writes to the ledger, so every value may be
// recomputed at any frequency.
type Service struct {
	repo     ledger.Repository
	referral referralStats
	billing  config.BillingConfig
	alerts   config.AlertsConfig
	logger   *logger.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// NewService validates dependencies and builds the engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.Referral == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "referral stats required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		referral: params.Referral,
		billing:  params.Billing,
		alerts:   params.Alerts,
		logger:   params.Logger,
		Now:      time.Now,
	}, nil
}

// Snapshot is the operator metrics payload.
type Snapshot struct {
	MRR                decimal.Decimal              `json:"mrr"`
	ARR                decimal.Decimal              `json:"arr"`
	ChurnRate          float64                      `json:"churnRate"`
	ConversionRate     float64                      `json:"conversionRate"`
	StatusDistribution map[enums.TenantStatus]int64 `json:"statusDistribution"`
	OverdueInvoices    []models.Invoice             `json:"overdueInvoices"`
	ReferralStats      *referral.Stats              `json:"referralStats"`
	ComputedAt         time.Time                    `json:"computedAt"`
}

// Snapshot computes every headline metric from current ledger state.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := s.Now().UTC()

	mrr, err := s.mrr(ctx)
	if err != nil {
		return nil, err
	}

	churn, err := s.churnRate(ctx, now)
	if err != nil {
		return nil, err
	}

	conversion, err := s.conversionRate(ctx)
	if err != nil {
		return nil, err
	}

	distribution, err := s.repo.CountTenantsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count tenants by status")
	}

	overdue, err := s.repo.ListOverdueInvoices(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue invoices")
	}

	refStats, err := s.referral.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		MRR:                mrr,
		ARR:                mrr.Mul(decimal.NewFromInt(12)),
		ChurnRate:          churn,
		ConversionRate:     conversion,
		StatusDistribution: distribution,
		OverdueInvoices:    overdue,
		ReferralStats:      refStats,
		ComputedAt:         now,
	}, nil
}

// mrr sums every open subscription's amount normalized to a monthly cadence.
func (s *Service) mrr(ctx context.Context) (decimal.Decimal, error) {
	subs, err := s.repo.ListCountableSubscriptions(ctx)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list open subscriptions")
	}
	total := decimal.Zero
	for i := range subs {
		total = total.Add(subs[i].MonthlyAmount())
	}
	return total, nil
}

// churnRate divides cancellations completed in the trailing calendar month
// by subscriptions active at that month's start, both reconstructed from the
// status trail. Zero cancellations is zero churn no matter the denominator.
func (s *Service) churnRate(ctx context.Context, now time.Time) (float64, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	monthEnd := monthStart.AddDate(0, 1, 0)

	cancelled, err := s.repo.CountCancellationsBetween(ctx, monthStart, monthEnd)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count cancellations")
	}
	if cancelled == 0 {
		return 0, nil
	}

	openAtStart, err := s.repo.CountSubscriptionsActiveAt(ctx, monthStart)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count open subscriptions")
	}
	if openAtStart == 0 {
		return 0, nil
	}
	return float64(cancelled) / float64(openAtStart), nil
}

// conversionRate divides tenants that ever reached active by total tenants.
func (s *Service) conversionRate(ctx context.Context) (float64, error) {
	total, err := s.repo.CountTenants(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count tenants")
	}
	if total == 0 {
		return 0, nil
	}
	everActive, err := s.repo.CountTenantsEverActive(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count ever-active tenants")
	}
	return float64(everActive) / float64(total), nil
}
