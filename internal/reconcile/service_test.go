package reconcile

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/consertaja/billing/internal/gateway"
	"github.com/consertaja/billing/internal/ledger"
	"github.com/consertaja/billing/pkg/config"
	"github.com/consertaja/billing/pkg/db"
	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
	pkgerrors "github.com/consertaja/billing/pkg/errors"
	"github.com/consertaja/billing/pkg/logger"
)

type stubGateway struct {
	created    []gateway.SubscriptionCreateParams
	cancelled  []string
	createErr  error
	nextSubID  string
	paymentURL string
}

func (g *stubGateway) CreateSubscription(_ context.Context, params gateway.SubscriptionCreateParams) (*gateway.Subscription, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, params)
	id := g.nextSubID
	if id == "" {
		id = "sub_" + uuid.NewString()
	}
	return &gateway.Subscription{
		ID:          id,
		Status:      "ACTIVE",
		Value:       params.Value,
		Cycle:       params.Cycle,
		PaymentLink: g.paymentURL,
	}, nil
}

func (g *stubGateway) CancelSubscription(_ context.Context, subscriptionID string) error {
	g.cancelled = append(g.cancelled, subscriptionID)
	return nil
}

type engineFixture struct {
	svc     *Service
	repo    ledger.Repository
	gateway *stubGateway
	conn    *gorm.DB
	now     time.Time
}

func newEngine(t *testing.T) *engineFixture {
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

	repo := ledger.NewRepository(conn)
	stub := &stubGateway{paymentURL: "https://gateway.example/pay"}
	logg := logger.New(logger.Options{
		ServiceName: "reconcile-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})

	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Gateway:           stub,
		TransactionRunner: db.NewWithConn(conn),
		Billing: config.BillingConfig{
			TrialDays:     7,
			GraceWindow:   120 * time.Hour,
			MonthlyAmount: "150.00",
			YearlyAmount:  "1440.00",
			Currency:      "BRL",
		},
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	fixture := &engineFixture{svc: svc, repo: repo, gateway: stub, conn: conn, now: time.Now().UTC()}
	svc.Now = func() time.Time { return fixture.now }
	return fixture
}

func (f *engineFixture) register(t *testing.T, referralCode string) *models.Tenant {
	t.Helper()
	tenant, err := f.svc.RegisterTenant(context.Background(), RegisterTenantParams{
		Name:         "Oficina " + uuid.NewString()[:8],
		ReferralCode: referralCode,
	})
	if err != nil {
		t.Fatalf("failed to register tenant: %v", err)
	}
	return tenant
}

func (f *engineFixture) checkout(t *testing.T, tenantID uuid.UUID) *models.Subscription {
	t.Helper()
	result, err := f.svc.Checkout(context.Background(), tenantID, enums.BillingCycleMonthly)
	if err != nil {
		t.Fatalf("failed to checkout: %v", err)
	}
	return result.Subscription
}

func (f *engineFixture) confirmedEvent(sub *models.Subscription, paymentID string) *gateway.Event {
	return &gateway.Event{
		ID:             "evt_" + paymentID,
		Type:           enums.GatewayEventPaymentConfirmed,
		PaymentID:      paymentID,
		SubscriptionID: derefString(sub.GatewaySubscriptionID),
		Amount:         decimal.RequireFromString("150.00"),
		DueDate:        f.now,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (f *engineFixture) reloadTenant(t *testing.T, id uuid.UUID) *models.Tenant {
	t.Helper()
	tenant, err := f.repo.FindTenantByID(context.Background(), id)
	if err != nil || tenant == nil {
		t.Fatalf("failed to reload tenant: %v", err)
	}
	return tenant
}

func TestRegisterTenantStartsTrial(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")

	if tenant.Status != enums.TenantStatusTrial {
		t.Fatalf("expected trial status, got %s", tenant.Status)
	}
	want := f.now.Add(7 * 24 * time.Hour)
	if !tenant.TrialEndsAt.Equal(want) {
		t.Fatalf("expected trial end %s, got %s", want, tenant.TrialEndsAt)
	}
	if tenant.ReferralCode == "" {
		t.Fatal("expected a referral code to be assigned")
	}
}

func TestRegisterTenantResolvesReferralCode(t *testing.T) {
	f := newEngine(t)
	referrer := f.register(t, "")
	referred := f.register(t, referrer.ReferralCode)

	if referred.ReferredByID == nil || *referred.ReferredByID != referrer.ID {
		t.Fatalf("expected referred-by %s, got %v", referrer.ID, referred.ReferredByID)
	}

	_, err := f.svc.RegisterTenant(context.Background(), RegisterTenantParams{
		Name:         "Oficina X",
		ReferralCode: "BOGUS",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown code, got %v", err)
	}
}

func TestConfirmedPaymentActivatesTrialTenant(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := f.reloadTenant(t, tenant.ID)
	if reloaded.Status != enums.TenantStatusActive {
		t.Fatalf("expected active, got %s", reloaded.Status)
	}
	if reloaded.LastActivatedAt == nil {
		t.Fatal("expected last activation timestamp")
	}

	invoice, err := f.repo.FindInvoiceByGatewayPaymentID(context.Background(), "pay_1")
	if err != nil || invoice == nil {
		t.Fatalf("expected invoice row: %v", err)
	}
	if invoice.Status != enums.InvoiceStatusConfirmed {
		t.Fatalf("expected confirmed invoice, got %s", invoice.Status)
	}
	if invoice.PaidAt == nil {
		t.Fatal("expected paid timestamp")
	}

	stored, err := f.repo.FindSubscriptionByID(context.Background(), sub.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if stored.Status != enums.TenantStatusActive {
		t.Fatalf("expected active subscription, got %s", stored.Status)
	}
	if stored.CurrentPeriodEnd == nil || !stored.CurrentPeriodEnd.After(f.now) {
		t.Fatalf("expected period end in the future, got %v", stored.CurrentPeriodEnd)
	}
}

func TestDuplicateEventIsIdempotent(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)
	event := f.confirmedEvent(sub, "pay_dup")

	if err := f.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error on first delivery: %v", err)
	}
	firstEnd := f.currentPeriodEnd(t, sub.ID)

	if err := f.svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error on duplicate delivery: %v", err)
	}

	invoices, err := f.repo.ListInvoicesBySubscription(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("failed to list invoices: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("expected exactly one invoice, got %d", len(invoices))
	}
	if got := f.currentPeriodEnd(t, sub.ID); !got.Equal(firstEnd) {
		t.Fatalf("expected period end unchanged, got %s vs %s", got, firstEnd)
	}
}

func (f *engineFixture) currentPeriodEnd(t *testing.T, subID uuid.UUID) time.Time {
	t.Helper()
	sub, err := f.repo.FindSubscriptionByID(context.Background(), subID)
	if err != nil || sub == nil || sub.CurrentPeriodEnd == nil {
		t.Fatalf("expected subscription with period end: %v", err)
	}
	return *sub.CurrentPeriodEnd
}

func TestStaleOverdueNeverRegressesActive(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_ord")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stale := &gateway.Event{
		ID:         "evt_stale",
		Type:       enums.GatewayEventPaymentOverdue,
		PaymentID:  "pay_ord",
		OccurredAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	err := f.svc.ProcessEvent(context.Background(), stale)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStaleEvent) {
		t.Fatalf("expected stale-event discard, got %v", err)
	}

	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusActive {
		t.Fatalf("expected tenant to stay active, got %s", got)
	}
}

func TestOverdueRegressionBlockedByInvoiceOrder(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_late")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Replay with no timestamp at all; the invoice partial order still
	// refuses confirmed -> overdue.
	replay := &gateway.Event{
		ID:        "evt_replay",
		Type:      enums.GatewayEventPaymentOverdue,
		PaymentID: "pay_late",
	}
	err := f.svc.ProcessEvent(context.Background(), replay)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStaleEvent) {
		t.Fatalf("expected stale-event discard, got %v", err)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusActive {
		t.Fatalf("expected tenant to stay active, got %s", got)
	}
}

func TestOverdueEventFlagsActiveTenant(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_m1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overdue := &gateway.Event{
		ID:             "evt_overdue",
		Type:           enums.GatewayEventPaymentOverdue,
		PaymentID:      "pay_m2",
		SubscriptionID: derefString(sub.GatewaySubscriptionID),
		DueDate:        f.now.AddDate(0, 1, 0),
	}
	if err := f.svc.ProcessEvent(context.Background(), overdue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusOverdue {
		t.Fatalf("expected overdue, got %s", got)
	}

	// Late payment of the overdue invoice re-enters active.
	late := &gateway.Event{
		ID:        "evt_late_pay",
		Type:      enums.GatewayEventPaymentReceived,
		PaymentID: "pay_m2",
	}
	if err := f.svc.ProcessEvent(context.Background(), late); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusActive {
		t.Fatalf("expected active after late payment, got %s", got)
	}
}

func TestTrialExpirySweep(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")

	// 7 days plus an hour with no payment.
	f.now = f.now.Add(7*24*time.Hour + time.Hour)

	expired, err := f.svc.ExpireTrials(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expiry, got %d", expired)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	// Sweep is conditional on persisted state; running again is a no-op.
	expired, err = f.svc.ExpireTrials(context.Background())
	if err != nil || expired != 0 {
		t.Fatalf("expected idempotent sweep, got %d changes, err %v", expired, err)
	}
}

func TestSuspendOverdueAfterGraceWindow(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_g1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	overdue := &gateway.Event{
		ID:             "evt_g_overdue",
		Type:           enums.GatewayEventPaymentOverdue,
		PaymentID:      "pay_g2",
		SubscriptionID: derefString(sub.GatewaySubscriptionID),
		DueDate:        f.now,
	}
	if err := f.svc.ProcessEvent(context.Background(), overdue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Inside the grace window nothing happens.
	f.now = f.now.Add(24 * time.Hour)
	suspended, err := f.svc.SuspendOverdue(context.Background())
	if err != nil || suspended != 0 {
		t.Fatalf("expected no suspension inside grace window, got %d, err %v", suspended, err)
	}

	// Past the 120h window the sweep suspends.
	f.now = f.now.Add(120 * time.Hour)
	suspended, err = f.svc.SuspendOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suspended != 1 {
		t.Fatalf("expected 1 suspension, got %d", suspended)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusSuspended {
		t.Fatalf("expected suspended, got %s", got)
	}
}

func TestCancelKeepsAccessUntilPeriodEnd(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_c1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.CancelSubscription(context.Background(), tenant.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.gateway.cancelled) != 1 {
		t.Fatalf("expected gateway cancel call, got %d", len(f.gateway.cancelled))
	}

	reloaded := f.reloadTenant(t, tenant.ID)
	if reloaded.Status != enums.TenantStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reloaded.Status)
	}
	if !reloaded.Status.HasAccess() {
		t.Fatal("expected cancelled tenant to retain access")
	}

	// Paid period has a month to run; the sweep must not expire yet.
	retired, err := f.svc.ExpireCancelled(context.Background())
	if err != nil || retired != 0 {
		t.Fatalf("expected no expiry before period end, got %d, err %v", retired, err)
	}

	f.now = f.now.AddDate(0, 1, 1)
	retired, err = f.svc.ExpireCancelled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retired != 1 {
		t.Fatalf("expected 1 expiry after period end, got %d", retired)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}
}

func TestPaymentAfterCancelSupersedesCancellation(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_r1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.CancelSubscription(context.Background(), tenant.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_r2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := f.reloadTenant(t, tenant.ID)
	if reloaded.Status != enums.TenantStatusActive {
		t.Fatalf("expected active after re-payment, got %s", reloaded.Status)
	}

	stored, err := f.repo.FindSubscriptionByID(context.Background(), sub.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload subscription: %v", err)
	}
	if stored.CancelAtPeriodEnd || stored.CancelledAt != nil {
		t.Fatalf("expected pending cancellation cleared, got %+v", stored)
	}
}

func TestCheckoutRejectsSecondOpenSubscription(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_s1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.svc.Checkout(context.Background(), tenant.ID, enums.BillingCycleMonthly)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCheckoutSupersedesAbandonedAttempt(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")

	first := f.checkout(t, tenant.ID)
	second := f.checkout(t, tenant.ID)

	if len(f.gateway.created) != 2 {
		t.Fatalf("expected 2 gateway subscriptions, got %d", len(f.gateway.created))
	}
	if len(f.gateway.cancelled) != 1 || f.gateway.cancelled[0] != derefString(first.GatewaySubscriptionID) {
		t.Fatalf("expected the first gateway subscription cancelled, got %v", f.gateway.cancelled)
	}

	stored, err := f.repo.FindSubscriptionByID(context.Background(), first.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload first subscription: %v", err)
	}
	if stored.Status != enums.TenantStatusCancelled || stored.CancelledAt == nil {
		t.Fatalf("expected first attempt cancelled, got %+v", stored)
	}

	// Paying the surviving attempt activates normally.
	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(second, "pay_a1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusActive {
		t.Fatalf("expected active, got %s", got)
	}

	// Superseding an unpaid attempt is not churn.
	count, err := f.repo.CountCancellationsBetween(context.Background(), f.now.Add(-time.Hour), f.now.Add(time.Hour))
	if err != nil || count != 0 {
		t.Fatalf("expected no cancellation transitions, got %d, err %v", count, err)
	}
}

func TestOverdueSweepBackfillsMissedNotification(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	sub := f.checkout(t, tenant.ID)
	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(sub, "pay_b1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The next charge materializes, then its PAYMENT_OVERDUE notification is
	// lost.
	due := f.now.AddDate(0, 0, 1)
	created := &gateway.Event{
		ID:             "evt_b_created",
		Type:           enums.GatewayEventPaymentCreated,
		PaymentID:      "pay_b2",
		SubscriptionID: derefString(sub.GatewaySubscriptionID),
		DueDate:        due,
	}
	if err := f.svc.ProcessEvent(context.Background(), created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two days past due is beyond the delivery slack; the sweep backfills the
	// overdue mark without suspending inside the grace window.
	f.now = due.Add(48 * time.Hour)
	suspended, err := f.svc.SuspendOverdue(context.Background())
	if err != nil || suspended != 0 {
		t.Fatalf("expected backfill without suspension, got %d, err %v", suspended, err)
	}

	invoice, err := f.repo.FindInvoiceByGatewayPaymentID(context.Background(), "pay_b2")
	if err != nil || invoice == nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if invoice.Status != enums.InvoiceStatusOverdue {
		t.Fatalf("expected overdue invoice, got %s", invoice.Status)
	}
	if got := f.reloadTenant(t, tenant.ID).Status; got != enums.TenantStatusOverdue {
		t.Fatalf("expected overdue tenant, got %s", got)
	}

	// Past the grace window the regular suspension path takes over.
	f.now = f.now.Add(121 * time.Hour)
	suspended, err = f.svc.SuspendOverdue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suspended != 1 {
		t.Fatalf("expected 1 suspension, got %d", suspended)
	}
}

func TestPaymentOnSupersededSubscriptionViolatesInvariant(t *testing.T) {
	f := newEngine(t)
	tenant := f.register(t, "")
	first := f.checkout(t, tenant.ID)

	// A second row created directly, as if a plan change raced the payment.
	gatewayID := "sub_shadow"
	second := &models.Subscription{
		ID:                    uuid.New(),
		TenantID:              tenant.ID,
		Cycle:                 enums.BillingCycleMonthly,
		Amount:                decimal.RequireFromString("150.00"),
		Status:                enums.TenantStatusTrial,
		GatewaySubscriptionID: &gatewayID,
	}
	if err := f.repo.CreateSubscription(context.Background(), second); err != nil {
		t.Fatalf("failed to seed second subscription: %v", err)
	}

	if err := f.svc.ProcessEvent(context.Background(), f.confirmedEvent(first, "pay_i1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Paying the shadow subscription would create a second countable row.
	shadowPay := &gateway.Event{
		ID:             "evt_shadow",
		Type:           enums.GatewayEventPaymentConfirmed,
		PaymentID:      "pay_shadow",
		SubscriptionID: gatewayID,
	}
	err := f.svc.ProcessEvent(context.Background(), shadowPay)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	// The aborted write left the ledger unchanged and raised an error log.
	stored, err2 := f.repo.FindSubscriptionByID(context.Background(), second.ID)
	if err2 != nil || stored == nil {
		t.Fatalf("failed to reload shadow subscription: %v", err2)
	}
	if stored.IsCountable() {
		t.Fatal("expected shadow subscription to stay non-countable")
	}
	count, err2 := f.repo.CountErrorLogsBetween(context.Background(), f.now.Add(-time.Hour), f.now.Add(time.Hour))
	if err2 != nil || count == 0 {
		t.Fatalf("expected an error log entry, got %d, err %v", count, err2)
	}
	var entry models.ErrorLog
	if err2 := f.conn.Order("created_at DESC").First(&entry).Error; err2 != nil {
		t.Fatalf("failed to load error log: %v", err2)
	}
	if entry.Code != string(pkgerrors.CodeInvariant) {
		t.Fatalf("expected invariant code on error log, got %q", entry.Code)
	}
}

func TestUnknownEntityReturnsNotFound(t *testing.T) {
	f := newEngine(t)

	err := f.svc.ProcessEvent(context.Background(), &gateway.Event{
		ID:        "evt_unknown",
		Type:      enums.GatewayEventPaymentConfirmed,
		PaymentID: "pay_never_seen",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newEngine(t)

	if err := f.svc.ProcessEvent(context.Background(), &gateway.Event{ID: "evt_odd"}); err != nil {
		t.Fatalf("expected unknown type to be ignored, got %v", err)
	}
}
