package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type gatewayClient interface {
	CreateSubscription(ctx context.Context, params gateway.SubscriptionCreateParams) (*gateway.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the reconciliation engine.
type ServiceParams struct {
	Repo              ledger.Repository
	Gateway           gatewayClient
	TransactionRunner txRunner
	Billing           config.BillingConfig
	Logger            *logger.Logger
}

// Service owns every subscription-status write. Gateway events, scheduled
// sweeps and tenant requests all converge here and serialize per tenant.
type Service struct {
	repo     ledger.Repository
	gateway  gatewayClient
	txRunner txRunner
	billing  config.BillingConfig
	logger   *logger.Logger
	locks    *tenantLocks

	// Now is swappable in tests.
	Now func() time.Time
}

// NewService validates dependencies and builds the engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		txRunner: params.TransactionRunner,
		billing:  params.Billing,
		logger:   params.Logger,
		locks:    newTenantLocks(),
		Now:      time.Now,
	}, nil
}

// RegisterTenantParams carries tenant signup input.
type RegisterTenantParams struct {
	Name         string
	ReferralCode string
}

// RegisterTenant creates a tenant in trial. When a referral code resolves to
// an existing tenant the referred-by link is recorded for the referral scan.
func (s *Service) RegisterTenant(ctx context.Context, params RegisterTenantParams) (*models.Tenant, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant name required")
	}

	var referredBy *uuid.UUID
	if code := strings.TrimSpace(params.ReferralCode); code != "" {
		referrer, err := s.repo.FindTenantByReferralCode(ctx, code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve referral code")
		}
		if referrer == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown referral code")
		}
		referredBy = &referrer.ID
	}

	now := s.Now().UTC()
	tenant := &models.Tenant{
		ID:            uuid.New(),
		Name:          name,
		Status:        enums.TenantStatusTrial,
		TrialStartsAt: now,
		TrialEndsAt:   now.Add(s.billing.TrialLength()),
		ReferralCode:  newReferralCode(),
		ReferredByID:  referredBy,
	}
	if err := s.repo.CreateTenant(ctx, tenant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create tenant")
	}

	ctx = s.logger.WithTenantID(ctx, tenant.ID.String())
	s.logger.Info(ctx, "tenant registered on trial")
	return tenant, nil
}

// CheckoutResult is what the plans UI needs to send the tenant to payment.
type CheckoutResult struct {
	Subscription *models.Subscription
	CheckoutURL  string
}

// Checkout opens a subscription at the gateway for the requested cycle. The
// local row stays non-authoritative until the first confirmed payment
// arrives as a gateway event.
func (s *Service) Checkout(ctx context.Context, tenantID uuid.UUID, cycle enums.BillingCycle) (*CheckoutResult, error) {
	if !cycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing cycle")
	}
	amount, err := s.billing.AmountFor(cycle)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve plan amount")
	}

	unlock := s.locks.Acquire(tenantID)
	defer unlock()

	tenant, err := s.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	ctx = s.logger.WithTenantID(ctx, tenant.ID.String())

	existing, err := s.repo.FindCountableSubscription(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "tenant already has an open subscription")
	}

	// A re-run checkout supersedes earlier unpaid attempts. Their gateway
	// subscriptions are cancelled first so an abandoned payment link cannot
	// start a second recurring charge later.
	pending, err := s.repo.ListPendingSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending subscriptions")
	}
	now := s.Now().UTC()
	for i := range pending {
		prior := &pending[i]
		if prior.GatewaySubscriptionID != nil {
			if err := s.gateway.CancelSubscription(ctx, *prior.GatewaySubscriptionID); err != nil {
				return nil, err
			}
		}
		prior.Status = enums.TenantStatusCancelled
		prior.CancelledAt = &now
		if err := s.repo.UpdateSubscription(ctx, prior); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "supersede pending subscription")
		}
	}

	gatewaySub, err := s.gateway.CreateSubscription(ctx, gateway.SubscriptionCreateParams{
		CustomerID:  tenant.ID.String(),
		Value:       amount,
		Cycle:       strings.ToUpper(cycle.String()),
		NextDueDate: s.Now().UTC(),
		Description: "ConsertaJá " + cycle.String() + " plan",
		ExternalRef: tenant.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:                    uuid.New(),
		TenantID:              tenant.ID,
		Cycle:                 cycle,
		Amount:                amount,
		Status:                tenant.Status,
		GatewaySubscriptionID: &gatewaySub.ID,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
	}

	checkoutURL := gatewaySub.PaymentLink
	if checkoutURL == "" {
		checkoutURL = gatewaySub.InvoiceURL
	}
	s.logger.Info(ctx, "checkout opened at gateway")
	return &CheckoutResult{Subscription: sub, CheckoutURL: checkoutURL}, nil
}

// CancelSubscription marks the tenant's open subscription to end at the
// current paid period. Access is never revoked for already-paid time.
func (s *Service) CancelSubscription(ctx context.Context, tenantID uuid.UUID) error {
	unlock := s.locks.Acquire(tenantID)
	defer unlock()

	tenant, err := s.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	ctx = s.logger.WithTenantID(ctx, tenant.ID.String())

	sub, err := s.repo.FindCountableSubscription(ctx, tenantID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "tenant has no open subscription")
	}

	if sub.GatewaySubscriptionID != nil {
		if err := s.gateway.CancelSubscription(ctx, *sub.GatewaySubscriptionID); err != nil {
			return err
		}
	}

	now := s.Now().UTC()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		sub.Status = enums.TenantStatusCancelled
		sub.CancelAtPeriodEnd = true
		sub.CancelledAt = &now
		if err := txRepo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
		}
		return s.transition(ctx, txRepo, tenant, &sub.ID, enums.TenantStatusCancelled, enums.TriggerTenantRequest, "")
	})
}

// SubscriptionSummary is the tenant-facing billing view.
type SubscriptionSummary struct {
	Status             enums.TenantStatus
	TrialDaysRemaining int
	Subscription       *models.Subscription
	Invoices           []models.Invoice
}

// Summary assembles the tenant's current billing state. Reads are not
// serialized; a slightly stale snapshot is acceptable here.
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID) (*SubscriptionSummary, error) {
	tenant, err := s.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}

	summary := &SubscriptionSummary{
		Status:             tenant.Status,
		TrialDaysRemaining: tenant.TrialDaysRemaining(s.Now().UTC()),
	}

	sub, err := s.repo.FindLatestSubscription(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub != nil {
		summary.Subscription = sub
		invoices, err := s.repo.ListInvoicesBySubscription(ctx, sub.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoices")
		}
		summary.Invoices = invoices
	}
	return summary, nil
}

// transition applies a tenant status change and its audit row inside the
// caller's transaction. Entering active restarts the referral clock.
func (s *Service) transition(ctx context.Context, txRepo ledger.Repository, tenant *models.Tenant, subscriptionID *uuid.UUID, to enums.TenantStatus, trigger enums.TransitionTrigger, gatewayEventID string) error {
	from := tenant.Status
	if from == to {
		return nil
	}

	now := s.Now().UTC()
	tenant.Status = to
	if to == enums.TenantStatusActive {
		tenant.LastActivatedAt = &now
	}
	if to == enums.TenantStatusExpired {
		tenant.ArchivedAt = &now
	}
	if err := txRepo.UpdateTenant(ctx, tenant); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update tenant status")
	}

	change := &models.StatusChange{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		SubscriptionID: subscriptionID,
		FromStatus:     from,
		ToStatus:       to,
		Trigger:        trigger,
		GatewayEventID: gatewayEventID,
	}
	if err := txRepo.RecordStatusChange(ctx, change); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record status change")
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"from":    from.String(),
		"to":      to.String(),
		"trigger": trigger.String(),
	}), "tenant status changed")
	return nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
