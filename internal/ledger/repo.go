package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/consertaja/billing/pkg/db/models"
	"github.com/consertaja/billing/pkg/enums"
)

// Repository is the durable record of tenants, subscriptions, invoices and
// referral relationships. Every other engine component reads and writes
// through this surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	FindTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	FindTenantByReferralCode(ctx context.Context, code string) (*models.Tenant, error)
	ListTenantsByStatus(ctx context.Context, status enums.TenantStatus, limit int) ([]models.Tenant, error)
	ListExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.Tenant, error)
	ListQualifyingReferred(ctx context.Context, activeSince time.Time, limit int) ([]models.Tenant, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindCountableSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	FindLatestSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error)
	ListSubscriptionsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error)
	ListCountableSubscriptions(ctx context.Context) ([]models.Subscription, error)
	ListPendingSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error)
	CountSubscriptionsActiveAt(ctx context.Context, at time.Time) (int64, error)
	CountCancellationsBetween(ctx context.Context, start, end time.Time) (int64, error)

	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindInvoiceByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Invoice, error)
	ListInvoicesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Invoice, error)
	ListOverdueInvoices(ctx context.Context, dueBefore time.Time) ([]models.Invoice, error)
	ListPendingInvoicesDueBefore(ctx context.Context, dueBefore time.Time) ([]models.Invoice, error)
	HasPaidInvoice(ctx context.Context, tenantID uuid.UUID) (bool, error)

	CreateReferralGrant(ctx context.Context, grant *models.ReferralGrant) error
	FindReferralGrant(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralGrant, error)
	CountReferralGrants(ctx context.Context) (int64, error)
	SumGrantedMonths(ctx context.Context) (int64, error)

	RecordStatusChange(ctx context.Context, change *models.StatusChange) error
	CountTenantsEverActive(ctx context.Context) (int64, error)
	CountTenants(ctx context.Context) (int64, error)
	CountTenantsByStatus(ctx context.Context) (map[enums.TenantStatus]int64, error)
	CountReferredTenants(ctx context.Context) (int64, error)

	CreateErrorLog(ctx context.Context, entry *models.ErrorLog) error
	CountErrorLogsBetween(ctx context.Context, start, end time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *repository) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}

func (r *repository) FindTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) FindTenantByReferralCode(ctx context.Context, code string) (*models.Tenant, error) {
	if code == "" {
		return nil, nil
	}
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).
		Where("referral_code = ?", code).
		First(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) ListTenantsByStatus(ctx context.Context, status enums.TenantStatus, limit int) ([]models.Tenant, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var tenants []models.Tenant
	if err := query.Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repository) ListExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]models.Tenant, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.TenantStatusTrial).
		Where("trial_ends_at < ?", asOf).
		Order("trial_ends_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var tenants []models.Tenant
	if err := query.Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repository) ListQualifyingReferred(ctx context.Context, activeSince time.Time, limit int) ([]models.Tenant, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.TenantStatusActive).
		Where("referred_by_id IS NOT NULL").
		Where("last_activated_at IS NOT NULL AND last_activated_at <= ?", activeSince).
		Order("last_activated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var tenants []models.Tenant
	if err := query.Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindCountableSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("status IN (?)", []enums.TenantStatus{enums.TenantStatusActive, enums.TenantStatusOverdue}).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindLatestSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByGatewayID(ctx context.Context, gatewayID string) (*models.Subscription, error) {
	if gatewayID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("gateway_subscription_id = ?", gatewayID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptionsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListCountableSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status IN (?)", []enums.TenantStatus{enums.TenantStatusActive, enums.TenantStatusOverdue}).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// CountSubscriptionsActiveAt reconstructs point-in-time status from the audit
// trail: a subscription counts when its latest status change before the
// instant left it in {active, overdue}. The subscription row itself only
// carries the current status, so never-activated checkout rows and
// subscriptions suspended earlier do not count.
func (r *repository) CountSubscriptionsActiveAt(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StatusChange{}).
		Where("subscription_id IS NOT NULL").
		Where("created_at < ?", at).
		Where("to_status IN (?)", []enums.TenantStatus{enums.TenantStatusActive, enums.TenantStatusOverdue}).
		Where(`created_at = (SELECT MAX(sc.created_at) FROM status_changes sc
			WHERE sc.subscription_id = status_changes.subscription_id AND sc.created_at < ?)`, at).
		Distinct("subscription_id").
		Count(&count).Error
	return count, err
}

// CountCancellationsBetween counts transitions into cancelled, not rows with
// cancelled_at stamped: superseded checkout attempts are cancelled without a
// status change and must not register as churn.
func (r *repository) CountCancellationsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StatusChange{}).
		Where("to_status = ?", enums.TenantStatusCancelled).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error
	return count, err
}

// ListPendingSubscriptions returns subscriptions opened at the gateway that
// never reached the countable set and were not cancelled. A re-run checkout
// supersedes these.
func (r *repository) ListPendingSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("cancelled_at IS NULL").
		Where("status NOT IN (?)", []enums.TenantStatus{enums.TenantStatusActive, enums.TenantStatusOverdue}).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) FindInvoiceByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindInvoiceByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*models.Invoice, error) {
	if gatewayPaymentID == "" {
		return nil, nil
	}
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoicesBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("due_date DESC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ListOverdueInvoices(ctx context.Context, dueBefore time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.InvoiceStatusOverdue).
		Where("due_date < ?", dueBefore).
		Order("due_date ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ListPendingInvoicesDueBefore(ctx context.Context, dueBefore time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.InvoiceStatusPending).
		Where("due_date < ?", dueBefore).
		Order("due_date ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) HasPaidInvoice(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Joins("JOIN subscriptions ON subscriptions.id = invoices.subscription_id").
		Where("subscriptions.tenant_id = ?", tenantID).
		Where("invoices.status IN (?)", []enums.InvoiceStatus{enums.InvoiceStatusReceived, enums.InvoiceStatusConfirmed}).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateReferralGrant(ctx context.Context, grant *models.ReferralGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *repository) FindReferralGrant(ctx context.Context, referrerID, referredID uuid.UUID) (*models.ReferralGrant, error) {
	var grant models.ReferralGrant
	if err := r.db.WithContext(ctx).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		First(&grant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *repository) CountReferralGrants(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReferralGrant{}).Count(&count).Error
	return count, err
}

func (r *repository) SumGrantedMonths(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.ReferralGrant{}).
		Select("COALESCE(SUM(months_granted), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) RecordStatusChange(ctx context.Context, change *models.StatusChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *repository) CountTenantsEverActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StatusChange{}).
		Where("to_status = ?", enums.TenantStatusActive).
		Distinct("tenant_id").
		Count(&count).Error
	return count, err
}

func (r *repository) CountTenants(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Tenant{}).Count(&count).Error
	return count, err
}

func (r *repository) CountTenantsByStatus(ctx context.Context) (map[enums.TenantStatus]int64, error) {
	type row struct {
		Status enums.TenantStatus
		Total  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	distribution := make(map[enums.TenantStatus]int64, len(rows))
	for _, entry := range rows {
		distribution[entry.Status] = entry.Total
	}
	return distribution, nil
}

func (r *repository) CountReferredTenants(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("referred_by_id IS NOT NULL").
		Count(&count).Error
	return count, err
}

func (r *repository) CreateErrorLog(ctx context.Context, entry *models.ErrorLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CountErrorLogsBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ErrorLog{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error
	return count, err
}
