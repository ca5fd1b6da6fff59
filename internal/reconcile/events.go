package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
)

// ProcessEvent applies one deduplicated gateway notification to the ledger.
// Handlers are idempotent: a replayed or out-of-order event either no-ops or
// returns CodeStaleEvent, which callers acknowledge without a state change.
func (s *Service) ProcessEvent(ctx context.Context, event *gateway.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event required")
	}
	ctx = s.logger.WithGatewayEventID(ctx, event.ID)

	if event.Type == "" {
		s.logger.Info(ctx, "ignoring unhandled gateway event type")
		return nil
	}

	sub, err := s.resolveSubscription(ctx, event)
	if err != nil {
		s.recordFailure(ctx, event, err)
		return err
	}
	ctx = s.logger.WithTenantID(ctx, sub.TenantID.String())

	unlock := s.locks.Acquire(sub.TenantID)
	defer unlock()

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.applyEvent(ctx, s.repo.WithTx(tx), event, sub.ID)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStaleEvent) {
			s.logger.Info(ctx, "discarded stale gateway event")
			return err
		}
		s.recordFailure(ctx, event, err)
		return err
	}
	return nil
}

// resolveSubscription finds the local subscription an event refers to, by
// payment id first, then gateway subscription id, then the external tenant
// reference the checkout stamped on the charge.
func (s *Service) resolveSubscription(ctx context.Context, event *gateway.Event) (*models.Subscription, error) {
	if event.PaymentID != "" {
		invoice, err := s.repo.FindInvoiceByGatewayPaymentID(ctx, event.PaymentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up invoice")
		}
		if invoice != nil {
			sub, err := s.repo.FindSubscriptionByID(ctx, invoice.SubscriptionID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up subscription")
			}
			if sub != nil {
				return sub, nil
			}
		}
	}

	if event.SubscriptionID != "" {
		sub, err := s.repo.FindSubscriptionByGatewayID(ctx, event.SubscriptionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up subscription")
		}
		if sub != nil {
			return sub, nil
		}
	}

	if event.ExternalRef != "" {
		if tenantID, err := uuid.Parse(event.ExternalRef); err == nil {
			sub, err := s.repo.FindLatestSubscription(ctx, tenantID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "look up subscription")
			}
			if sub != nil {
				return sub, nil
			}
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event references no known subscription")
}

func (s *Service) applyEvent(ctx context.Context, txRepo ledger.Repository, event *gateway.Event, subscriptionID uuid.UUID) error {
	sub, err := txRepo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription vanished")
	}
	tenant, err := txRepo.FindTenantByID(ctx, sub.TenantID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload tenant")
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant vanished")
	}

	invoice, created, err := s.ensureInvoice(ctx, txRepo, event, sub)
	if err != nil {
		return err
	}

	// The gateway's clock ordered this event before our last write; the
	// newer local state wins. A just-created invoice has no prior write to
	// compare against.
	if !created && !event.OccurredAt.IsZero() && event.OccurredAt.Before(invoice.UpdatedAt) {
		return pkgerrors.New(pkgerrors.CodeStaleEvent, "event older than invoice state")
	}

	target, ok := event.Type.InvoiceStatus()
	if !ok {
		// PAYMENT_CREATED only materializes the invoice row.
		return nil
	}
	if invoice.Status == target {
		return nil
	}
	if !invoice.Status.CanTransitionTo(target) {
		return pkgerrors.New(pkgerrors.CodeStaleEvent,
			fmt.Sprintf("invoice cannot move %s to %s", invoice.Status, target))
	}

	now := s.Now().UTC()
	invoice.Status = target
	if target.IsPaid() {
		paidAt := event.OccurredAt
		if paidAt.IsZero() {
			paidAt = now
		}
		invoice.PaidAt = &paidAt
	}
	if err := txRepo.UpdateInvoice(ctx, invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update invoice")
	}

	switch {
	case event.Type.IsPayment():
		return s.applyPayment(ctx, txRepo, event, tenant, sub)
	case event.Type == enums.GatewayEventPaymentOverdue:
		return s.applyOverdue(ctx, txRepo, event, tenant, sub)
	default:
		// Refunds and deletions terminate the invoice; the tenant keeps its
		// current status until a sweep or a new payment decides otherwise.
		s.logger.Info(ctx, "invoice closed by gateway event")
		return nil
	}
}

func (s *Service) ensureInvoice(ctx context.Context, txRepo ledger.Repository, event *gateway.Event, sub *models.Subscription) (*models.Invoice, bool, error) {
	invoice, err := txRepo.FindInvoiceByGatewayPaymentID(ctx, event.PaymentID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload invoice")
	}
	if invoice != nil {
		return invoice, false, nil
	}
	if event.PaymentID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "event carries no payment reference")
	}

	amount := event.Amount
	if amount.IsZero() {
		amount = sub.Amount
	}
	dueDate := event.DueDate
	if dueDate.IsZero() {
		dueDate = s.Now().UTC()
	}

	invoice = &models.Invoice{
		ID:               uuid.New(),
		SubscriptionID:   sub.ID,
		Amount:           amount,
		Status:           enums.InvoiceStatusPending,
		DueDate:          dueDate,
		GatewayPaymentID: event.PaymentID,
		InvoiceURL:       event.InvoiceURL,
		BankSlipURL:      event.BankSlipURL,
	}
	if err := txRepo.CreateInvoice(ctx, invoice); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
	}
	return invoice, true, nil
}

// applyPayment is the highest-priority signal: a confirmed payment re-enters
// active from any state and supersedes a pending cancellation.
func (s *Service) applyPayment(ctx context.Context, txRepo ledger.Repository, event *gateway.Event, tenant *models.Tenant, sub *models.Subscription) error {
	other, err := txRepo.FindCountableSubscription(ctx, tenant.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check countable subscription")
	}
	if other != nil && other.ID != sub.ID {
		return pkgerrors.New(pkgerrors.CodeInvariant,
			fmt.Sprintf("tenant already holds open subscription %s", other.ID))
	}

	now := s.Now().UTC()
	periodBase := event.DueDate
	if periodBase.IsZero() || periodBase.Before(now) {
		periodBase = now
	}
	// Accrued referral bonus months are consumed on this renewal.
	periodEnd := periodBase.AddDate(0, sub.Cycle.Months()+tenant.BonusMonths, 0)
	if tenant.BonusMonths > 0 {
		tenant.BonusMonths = 0
	}

	sub.Status = enums.TenantStatusActive
	sub.CurrentPeriodEnd = &periodEnd
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = nil
	if err := txRepo.UpdateSubscription(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
	}

	if tenant.Status == enums.TenantStatusActive {
		// Renewal: period extended, no status transition to record.
		return txRepo.UpdateTenant(ctx, tenant)
	}
	return s.transition(ctx, txRepo, tenant, &sub.ID, enums.TenantStatusActive, enums.TriggerGatewayEvent, event.ID)
}

func (s *Service) applyOverdue(ctx context.Context, txRepo ledger.Repository, event *gateway.Event, tenant *models.Tenant, sub *models.Subscription) error {
	if tenant.Status != enums.TenantStatusActive {
		// Trials, suspensions and pending cancellations keep their state;
		// the invoice alone carries the overdue mark.
		return nil
	}

	sub.Status = enums.TenantStatusOverdue
	if err := txRepo.UpdateSubscription(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
	}
	return s.transition(ctx, txRepo, tenant, &sub.ID, enums.TenantStatusOverdue, enums.TriggerGatewayEvent, event.ID)
}

// recordFailure writes the operational log row the alerts engine counts.
func (s *Service) recordFailure(ctx context.Context, event *gateway.Event, cause error) {
	code := ""
	if coded := pkgerrors.As(cause); coded != nil {
		code = string(coded.Code())
	}
	entry := &models.ErrorLog{
		ID:      uuid.New(),
		Source:  "webhook",
		Code:    code,
		Message: fmt.Sprintf("event %s: %v", event.ID, cause),
	}
	if err := s.repo.CreateErrorLog(ctx, entry); err != nil {
		s.logger.Error(ctx, "failed to record error log", err)
	}
	s.logger.Error(ctx, "gateway event processing failed", cause)
}
