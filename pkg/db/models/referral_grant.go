package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferralGrant records that ReferrerID earned bonus months because
// ReferredID stayed active through the qualifying window. The composite
// unique index is what makes granting at-most-once under concurrent scans.
type ReferralGrant struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferrerID uuid.UUID `gorm:"column:referrer_id;type:uuid;not null;uniqueIndex:idx_referral_grants_pair"`
	ReferredID uuid.UUID `gorm:"column:referred_id;type:uuid;not null;uniqueIndex:idx_referral_grants_pair"`

	PeriodStart   time.Time `gorm:"column:period_start;not null"`
	PeriodEnd     time.Time `gorm:"column:period_end;not null"`
	MonthsGranted int       `gorm:"column:months_granted;not null"`
	GrantedAt     time.Time `gorm:"column:granted_at;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
