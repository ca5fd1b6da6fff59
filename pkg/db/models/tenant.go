package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/consertaja/billing/pkg/enums"
)

// Tenant is one subscribing business. Tenants are never deleted; churned
// tenants are soft-archived. Status is a projection of the authoritative
// subscription status, kept in sync by the reconciliation engine.
type Tenant struct {
	ID     uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Name   string             `gorm:"column:name;not null"`
	Status enums.TenantStatus `gorm:"column:status;not null;default:'trial';index"`

	TrialStartsAt time.Time `gorm:"column:trial_starts_at;not null"`
	TrialEndsAt   time.Time `gorm:"column:trial_ends_at;not null;index"`

	// LastActivatedAt restarts whenever the tenant re-enters active from any
	// other status; the referral engine measures its qualify window from here.
	LastActivatedAt *time.Time `gorm:"column:last_activated_at"`

	BonusMonths  int        `gorm:"column:bonus_months;not null;default:0"`
	ReferralCode string     `gorm:"column:referral_code;uniqueIndex;not null"`
	ReferredByID *uuid.UUID `gorm:"column:referred_by_id;type:uuid;index"`

	ArchivedAt *time.Time `gorm:"column:archived_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TrialDaysRemaining reports whole days left on trial, floored at zero.
func (t *Tenant) TrialDaysRemaining(now time.Time) int {
	if t.Status != enums.TenantStatusTrial {
		return 0
	}
	remaining := t.TrialEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}
