package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/pkg/enums"
)

// Subscription is the authoritative billing record for a tenant. Plan or
// cycle changes supersede the row with a new one; historical rows are kept.
// At most one subscription per tenant is in {active, overdue} at any instant.
type Subscription struct {
	ID       uuid.UUID          `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;index"`
	Cycle    enums.BillingCycle `gorm:"column:cycle;not null"`
	Amount   decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Status   enums.TenantStatus `gorm:"column:status;not null;index"`

	// GatewaySubscriptionID stays nil until the gateway confirms creation.
	GatewaySubscriptionID *string `gorm:"column:gateway_subscription_id;uniqueIndex"`

	CurrentPeriodEnd  *time.Time `gorm:"column:current_period_end"`
	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// MonthlyAmount normalizes the subscription amount to a monthly cadence.
func (s *Subscription) MonthlyAmount() decimal.Decimal {
	if s.Cycle == enums.BillingCycleYearly {
		return s.Amount.Div(decimal.NewFromInt(12))
	}
	return s.Amount
}

// IsCountable reports whether the subscription holds the tenant's single
// authoritative {active, overdue} slot.
func (s *Subscription) IsCountable() bool {
	return s.Status == enums.TenantStatusActive || s.Status == enums.TenantStatusOverdue
}
