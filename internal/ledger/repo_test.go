package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Tenant{},
		&models.Subscription{},
		&models.Invoice{},
		&models.ReferralGrant{},
		&models.StatusChange{},
		&models.ErrorLog{},
	); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return NewRepository(conn), conn
}

func seedTenant(t *testing.T, repo Repository, status enums.TenantStatus, trialEndsAt time.Time) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:            uuid.New(),
		Name:          "Oficina " + uuid.NewString()[:8],
		Status:        status,
		TrialStartsAt: trialEndsAt.AddDate(0, 0, -7),
		TrialEndsAt:   trialEndsAt,
		ReferralCode:  uuid.NewString(),
	}
	if err := repo.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}
	return tenant
}

func seedSubscription(t *testing.T, repo Repository, tenantID uuid.UUID, status enums.TenantStatus) *models.Subscription {
	t.Helper()
	gatewayID := "sub_" + uuid.NewString()
	sub := &models.Subscription{
		ID:                    uuid.New(),
		TenantID:              tenantID,
		Cycle:                 enums.BillingCycleMonthly,
		Amount:                decimal.RequireFromString("150.00"),
		Status:                status,
		GatewaySubscriptionID: &gatewayID,
	}
	if err := repo.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
	return sub
}

func TestFindTenantByIDMissingReturnsNil(t *testing.T) {
	repo, _ := newTestRepo(t)

	tenant, err := repo.FindTenantByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant != nil {
		t.Fatalf("expected nil tenant, got %+v", tenant)
	}
}

func TestFindTenantByReferralCode(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seeded := seedTenant(t, repo, enums.TenantStatusActive, now.AddDate(0, 0, 7))

	found, err := repo.FindTenantByReferralCode(ctx, seeded.ReferralCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != seeded.ID {
		t.Fatalf("expected tenant %s, got %+v", seeded.ID, found)
	}

	missing, err := repo.FindTenantByReferralCode(ctx, "no-such-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown code, got %+v", missing)
	}
}

func TestListExpiredTrials(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := seedTenant(t, repo, enums.TenantStatusTrial, now.Add(-time.Hour))
	seedTenant(t, repo, enums.TenantStatusTrial, now.Add(48*time.Hour))
	seedTenant(t, repo, enums.TenantStatusActive, now.Add(-time.Hour))

	tenants, err := repo.ListExpiredTrials(ctx, now, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("expected 1 expired trial, got %d", len(tenants))
	}
	if tenants[0].ID != expired.ID {
		t.Fatalf("expected tenant %s, got %s", expired.ID, tenants[0].ID)
	}
}

func TestFindCountableSubscription(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tenant := seedTenant(t, repo, enums.TenantStatusActive, now)
	seedSubscription(t, repo, tenant.ID, enums.TenantStatusCancelled)
	active := seedSubscription(t, repo, tenant.ID, enums.TenantStatusActive)

	found, err := repo.FindCountableSubscription(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != active.ID {
		t.Fatalf("expected subscription %s, got %+v", active.ID, found)
	}

	other := seedTenant(t, repo, enums.TenantStatusTrial, now)
	none, err := repo.FindCountableSubscription(ctx, other.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for tenant without countable subscription, got %+v", none)
	}
}

func seedStatusChange(t *testing.T, repo Repository, tenantID uuid.UUID, subscriptionID *uuid.UUID, from, to enums.TenantStatus, at time.Time) {
	t.Helper()
	if err := repo.RecordStatusChange(context.Background(), &models.StatusChange{
		ID:             uuid.New(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		FromStatus:     from,
		ToStatus:       to,
		Trigger:        enums.TriggerGatewayEvent,
		CreatedAt:      at,
	}); err != nil {
		t.Fatalf("failed to seed status change: %v", err)
	}
}

func TestCountSubscriptionsActiveAt(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	before := monthStart.AddDate(0, -1, 0)

	tenant := seedTenant(t, repo, enums.TenantStatusActive, now)

	// Activated before month start, still open: counted.
	open := seedSubscription(t, repo, tenant.ID, enums.TenantStatusActive)
	seedStatusChange(t, repo, tenant.ID, &open.ID, enums.TenantStatusTrial, enums.TenantStatusActive, before)

	// Activated before month start, cancelled mid month: counted at the
	// instant, and the cancellation registers in the trailing window.
	churned := seedSubscription(t, repo, tenant.ID, enums.TenantStatusCancelled)
	seedStatusChange(t, repo, tenant.ID, &churned.ID, enums.TenantStatusTrial, enums.TenantStatusActive, before)
	seedStatusChange(t, repo, tenant.ID, &churned.ID, enums.TenantStatusActive, enums.TenantStatusCancelled, monthStart.AddDate(0, 0, 10))

	// Suspended before month start: not counted.
	idle := seedSubscription(t, repo, tenant.ID, enums.TenantStatusSuspended)
	seedStatusChange(t, repo, tenant.ID, &idle.ID, enums.TenantStatusTrial, enums.TenantStatusActive, before)
	seedStatusChange(t, repo, tenant.ID, &idle.ID, enums.TenantStatusOverdue, enums.TenantStatusSuspended, before.AddDate(0, 0, 5))

	// Checkout row that never activated: no status trail, not counted.
	seedSubscription(t, repo, tenant.ID, enums.TenantStatusTrial)

	// Activated after month start: not counted at the instant.
	late := seedSubscription(t, repo, tenant.ID, enums.TenantStatusActive)
	seedStatusChange(t, repo, tenant.ID, &late.ID, enums.TenantStatusTrial, enums.TenantStatusActive, monthStart.AddDate(0, 0, 2))

	count, err := repo.CountSubscriptionsActiveAt(ctx, monthStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 subscriptions active at month start, got %d", count)
	}

	churnedCount, err := repo.CountCancellationsBetween(ctx, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if churnedCount != 1 {
		t.Fatalf("expected 1 cancellation in month, got %d", churnedCount)
	}
}

func TestReferralGrantPairIsUnique(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	referrer := seedTenant(t, repo, enums.TenantStatusActive, now)
	referred := seedTenant(t, repo, enums.TenantStatusActive, now)

	grant := &models.ReferralGrant{
		ID:            uuid.New(),
		ReferrerID:    referrer.ID,
		ReferredID:    referred.ID,
		PeriodStart:   now.AddDate(0, 0, -30),
		PeriodEnd:     now,
		MonthsGranted: 1,
		GrantedAt:     now,
	}
	if err := repo.CreateReferralGrant(ctx, grant); err != nil {
		t.Fatalf("unexpected error creating grant: %v", err)
	}

	duplicate := &models.ReferralGrant{
		ID:            uuid.New(),
		ReferrerID:    referrer.ID,
		ReferredID:    referred.ID,
		PeriodStart:   now.AddDate(0, 0, -30),
		PeriodEnd:     now,
		MonthsGranted: 1,
		GrantedAt:     now,
	}
	err := repo.CreateReferralGrant(ctx, duplicate)
	if err == nil {
		t.Fatal("expected unique violation for duplicate referrer/referred pair")
	}
	if !db.IsUniqueViolation(err, "idx_referral_grants_pair") {
		t.Fatalf("expected unique violation, got %v", err)
	}

	found, err := repo.FindReferralGrant(ctx, referrer.ID, referred.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != grant.ID {
		t.Fatalf("expected original grant %s, got %+v", grant.ID, found)
	}
}

func TestCountTenantsEverActiveIsDistinct(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tenant := seedTenant(t, repo, enums.TenantStatusActive, now)
	other := seedTenant(t, repo, enums.TenantStatusTrial, now)

	// Same tenant activating twice counts once.
	for _, from := range []enums.TenantStatus{enums.TenantStatusTrial, enums.TenantStatusOverdue} {
		if err := repo.RecordStatusChange(ctx, &models.StatusChange{
			ID:         uuid.New(),
			TenantID:   tenant.ID,
			FromStatus: from,
			ToStatus:   enums.TenantStatusActive,
			Trigger:    enums.TriggerGatewayEvent,
		}); err != nil {
			t.Fatalf("failed to record status change: %v", err)
		}
	}
	if err := repo.RecordStatusChange(ctx, &models.StatusChange{
		ID:         uuid.New(),
		TenantID:   other.ID,
		FromStatus: enums.TenantStatusTrial,
		ToStatus:   enums.TenantStatusExpired,
		Trigger:    enums.TriggerScheduledSweep,
	}); err != nil {
		t.Fatalf("failed to record status change: %v", err)
	}

	count, err := repo.CountTenantsEverActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 tenant ever active, got %d", count)
	}
}

func TestHasPaidInvoice(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tenant := seedTenant(t, repo, enums.TenantStatusActive, now)
	sub := seedSubscription(t, repo, tenant.ID, enums.TenantStatusActive)

	paid, err := repo.HasPaidInvoice(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid {
		t.Fatal("expected no paid invoice before any payment")
	}

	if err := repo.CreateInvoice(ctx, &models.Invoice{
		ID:               uuid.New(),
		SubscriptionID:   sub.ID,
		Amount:           decimal.RequireFromString("150.00"),
		Status:           enums.InvoiceStatusConfirmed,
		DueDate:          now,
		GatewayPaymentID: "pay_" + uuid.NewString(),
	}); err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}

	paid, err = repo.HasPaidInvoice(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !paid {
		t.Fatal("expected paid invoice after confirmed payment")
	}
}

func TestWithTxScopesWrites(t *testing.T) {
	repo, conn := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := conn.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		tenant := &models.Tenant{
			ID:            uuid.New(),
			Name:          "Assistencia Central",
			Status:        enums.TenantStatusTrial,
			TrialStartsAt: now,
			TrialEndsAt:   now.AddDate(0, 0, 7),
			ReferralCode:  uuid.NewString(),
		}
		if err := txRepo.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	if err == nil {
		t.Fatal("expected transaction to roll back")
	}

	count, err := repo.CountTenants(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard tenant, got %d rows", count)
	}
}
