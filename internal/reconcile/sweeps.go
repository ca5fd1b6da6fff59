package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
)

const sweepBatchSize = 500

// overdueDeliverySlack is how long past an invoice's due date the sweep waits
// for the gateway's PAYMENT_OVERDUE notification before marking the invoice
// overdue itself.
const overdueDeliverySlack = 24 * time.Hour

// ExpireTrials moves trial tenants whose window lapsed with no paid invoice
// to expired. Each tenant is an independent transaction; one failure does
// not block the rest, and cancellation just processes fewer tenants.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	tenants, err := s.repo.ListExpiredTrials(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired trials")
	}

	var expired int
	var errs error
	for i := range tenants {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.expireTrial(ctx, tenants[i].ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			s.recordSweepFailure(ctx, "trial_expiry", err)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errs
}

func (s *Service) expireTrial(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	unlock := s.locks.Acquire(tenantID)
	defer unlock()

	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		tenant, err := txRepo.FindTenantByID(ctx, tenantID)
		if err != nil {
			return err
		}
		// State may have moved since the list query; the sweep only acts on
		// what it re-reads under the lock.
		if tenant == nil || tenant.Status != enums.TenantStatusTrial {
			return nil
		}
		if !tenant.TrialEndsAt.Before(s.Now().UTC()) {
			return nil
		}
		paid, err := txRepo.HasPaidInvoice(ctx, tenant.ID)
		if err != nil {
			return err
		}
		if paid {
			return nil
		}
		changed = true
		return s.transition(ctx, txRepo, tenant, nil, enums.TenantStatusExpired, enums.TriggerScheduledSweep, "")
	})
	return changed, err
}

// SuspendOverdue suspends tenants whose overdue invoice stayed unpaid past
// the grace window. It first backfills the overdue mark on invoices whose
// PAYMENT_OVERDUE notification never arrived, so a lost webhook cannot keep
// a tenant active indefinitely.
func (s *Service) SuspendOverdue(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	errs := s.sweepMissedOverdue(ctx, now)

	tenants, err := s.repo.ListTenantsByStatus(ctx, enums.TenantStatusOverdue, sweepBatchSize)
	if err != nil {
		return 0, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue tenants"))
	}

	var suspended int
	for i := range tenants {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.suspendTenant(ctx, tenants[i].ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			s.recordSweepFailure(ctx, "overdue_suspend", err)
			continue
		}
		if changed {
			suspended++
		}
	}
	return suspended, errs
}

func (s *Service) suspendTenant(ctx context.Context, tenantID uuid.UUID, now time.Time) (bool, error) {
	unlock := s.locks.Acquire(tenantID)
	defer unlock()

	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		tenant, err := txRepo.FindTenantByID(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil || tenant.Status != enums.TenantStatusOverdue {
			return nil
		}
		sub, err := txRepo.FindCountableSubscription(ctx, tenant.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		overdueSince, ok, err := s.oldestOverdueDue(ctx, txRepo, sub)
		if err != nil {
			return err
		}
		if !ok || now.Sub(overdueSince) <= s.billing.GraceWindow {
			return nil
		}

		sub.Status = enums.TenantStatusSuspended
		if err := txRepo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		changed = true
		return s.transition(ctx, txRepo, tenant, &sub.ID, enums.TenantStatusSuspended, enums.TriggerScheduledSweep, "")
	})
	return changed, err
}

// sweepMissedOverdue marks pending invoices overdue once their due date plus
// the delivery slack passes, mirroring what applyOverdue does when the
// notification arrives.
func (s *Service) sweepMissedOverdue(ctx context.Context, now time.Time) error {
	invoices, err := s.repo.ListPendingInvoicesDueBefore(ctx, now.Add(-overdueDeliverySlack))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending invoices")
	}

	var errs error
	for i := range invoices {
		if ctx.Err() != nil {
			break
		}
		if err := s.markInvoiceOverdue(ctx, &invoices[i]); err != nil {
			errs = multierr.Append(errs, err)
			s.recordSweepFailure(ctx, "overdue_suspend", err)
		}
	}
	return errs
}

func (s *Service) markInvoiceOverdue(ctx context.Context, invoice *models.Invoice) error {
	sub, err := s.repo.FindSubscriptionByID(ctx, invoice.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	unlock := s.locks.Acquire(sub.TenantID)
	defer unlock()

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindInvoiceByID(ctx, invoice.ID)
		if err != nil {
			return err
		}
		// A payment event may have settled the invoice since the list query.
		if current == nil || current.Status != enums.InvoiceStatusPending {
			return nil
		}
		current.Status = enums.InvoiceStatusOverdue
		if err := txRepo.UpdateInvoice(ctx, current); err != nil {
			return err
		}

		tenant, err := txRepo.FindTenantByID(ctx, sub.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil || tenant.Status != enums.TenantStatusActive {
			return nil
		}
		open, err := txRepo.FindSubscriptionByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if open == nil || !open.IsCountable() {
			return nil
		}
		open.Status = enums.TenantStatusOverdue
		if err := txRepo.UpdateSubscription(ctx, open); err != nil {
			return err
		}
		return s.transition(ctx, txRepo, tenant, &open.ID, enums.TenantStatusOverdue, enums.TriggerScheduledSweep, "")
	})
}

func (s *Service) oldestOverdueDue(ctx context.Context, txRepo ledger.Repository, sub *models.Subscription) (time.Time, bool, error) {
	invoices, err := txRepo.ListInvoicesBySubscription(ctx, sub.ID)
	if err != nil {
		return time.Time{}, false, err
	}
	var oldest time.Time
	var found bool
	for i := range invoices {
		if invoices[i].Status != enums.InvoiceStatusOverdue {
			continue
		}
		if !found || invoices[i].DueDate.Before(oldest) {
			oldest = invoices[i].DueDate
			found = true
		}
	}
	return oldest, found, nil
}

// ExpireCancelled retires cancelled tenants once their paid period genuinely
// elapses. Paid time is never revoked early.
func (s *Service) ExpireCancelled(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	tenants, err := s.repo.ListTenantsByStatus(ctx, enums.TenantStatusCancelled, sweepBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cancelled tenants")
	}

	var retired int
	var errs error
	for i := range tenants {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.expireCancelled(ctx, tenants[i].ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			s.recordSweepFailure(ctx, "period_expiry", err)
			continue
		}
		if changed {
			retired++
		}
	}
	return retired, errs
}

func (s *Service) expireCancelled(ctx context.Context, tenantID uuid.UUID, now time.Time) (bool, error) {
	unlock := s.locks.Acquire(tenantID)
	defer unlock()

	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		tenant, err := txRepo.FindTenantByID(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil || tenant.Status != enums.TenantStatusCancelled {
			return nil
		}
		sub, err := txRepo.FindLatestSubscription(ctx, tenant.ID)
		if err != nil {
			return err
		}
		if sub != nil && sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
			return nil
		}
		changed = true
		return s.transition(ctx, txRepo, tenant, subID(sub), enums.TenantStatusExpired, enums.TriggerScheduledSweep, "")
	})
	return changed, err
}

func subID(sub *models.Subscription) *uuid.UUID {
	if sub == nil {
		return nil
	}
	return &sub.ID
}

func (s *Service) recordSweepFailure(ctx context.Context, sweep string, cause error) {
	entry := &models.ErrorLog{
		ID:      uuid.New(),
		Source:  "sweep:" + sweep,
		Message: cause.Error(),
	}
	if err := s.repo.CreateErrorLog(ctx, entry); err != nil {
		s.logger.Error(ctx, "failed to record error log", err)
	}
	s.logger.Error(ctx, sweep+" sweep step failed", cause)
}
