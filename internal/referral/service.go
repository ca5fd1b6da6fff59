package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the referral engine.
type ServiceParams struct {
	Repo              ledger.Repository
	TransactionRunner txRunner
	Config            config.ReferralConfig
	Logger            *logger.Logger
}

// Service grants bonus months to referrers once a referred tenant has stayed
// active through the qualifying window. It runs as a periodic scan, not a
// real-time hook.
type Service struct {
	repo     ledger.Repository
	txRunner txRunner
	cfg      config.ReferralConfig
	logger   *logger.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// NewService validates dependencies and builds the engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		cfg:      params.Config,
		logger:   params.Logger,
		Now:      time.Now,
	}, nil
}

// Scan walks referred tenants whose continuous-active window is complete and
// grants each referrer its bonus months. Any overdue or suspended excursion
// restarts the referred tenant's activation clock, so qualifying is simply
// last_activated_at being old enough while the tenant is still active.
func (s *Service) Scan(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	cutoff := now.Add(-s.cfg.QualifyWindow())

	candidates, err := s.repo.ListQualifyingReferred(ctx, cutoff, s.cfg.ScanLimit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list qualifying tenants")
	}

	var granted int
	var errs error
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.grant(ctx, &candidates[i], now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			granted++
		}
	}
	return granted, errs
}

// grant awards one referral inside a transaction. The composite unique index
// on (referrer, referred) is the backstop that keeps the award at-most-once
// even when two scans race; a duplicate insert is treated as already done.
func (s *Service) grant(ctx context.Context, referred *models.Tenant, now time.Time) (bool, error) {
	if referred.ReferredByID == nil {
		return false, nil
	}
	referrerID := *referred.ReferredByID

	var granted bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		existing, err := txRepo.FindReferralGrant(ctx, referrerID, referred.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		// Re-check under the transaction: the tenant may have lapsed since
		// the scan listed it.
		fresh, err := txRepo.FindTenantByID(ctx, referred.ID)
		if err != nil {
			return err
		}
		if fresh == nil || fresh.Status != enums.TenantStatusActive || fresh.LastActivatedAt == nil {
			return nil
		}
		periodStart := fresh.LastActivatedAt.UTC()
		if now.Sub(periodStart) < s.cfg.QualifyWindow() {
			return nil
		}

		referrer, err := txRepo.FindTenantByID(ctx, referrerID)
		if err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}

		grant := &models.ReferralGrant{
			ID:            uuid.New(),
			ReferrerID:    referrerID,
			ReferredID:    referred.ID,
			PeriodStart:   periodStart,
			PeriodEnd:     now,
			MonthsGranted: s.cfg.BonusMonths,
			GrantedAt:     now,
		}
		if err := txRepo.CreateReferralGrant(ctx, grant); err != nil {
			return err
		}

		referrer.BonusMonths += s.cfg.BonusMonths
		if err := txRepo.UpdateTenant(ctx, referrer); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "idx_referral_grants_pair") {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant referral bonus")
	}

	if granted {
		ctx = s.logger.WithFields(ctx, map[string]any{
			"referrer_id": referrerID.String(),
			"referred_id": referred.ID.String(),
		})
		s.logger.Info(ctx, "referral bonus granted")
	}
	return granted, nil
}

// Stats is the aggregate surfaced on the operator metrics payload.
type Stats struct {
	ReferredTenants    int64 `json:"referredTenants"`
	QualifiedReferrals int64 `json:"qualifiedReferrals"`
	BonusMonthsGranted int64 `json:"bonusMonthsGranted"`
}

// Stats reports program totals.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	referred, err := s.repo.CountReferredTenants(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count referred tenants")
	}
	grants, err := s.repo.CountReferralGrants(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count referral grants")
	}
	months, err := s.repo.SumGrantedMonths(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum granted months")
	}
	return &Stats{
		ReferredTenants:    referred,
		QualifiedReferrals: grants,
		BonusMonthsGranted: months,
	}, nil
}
