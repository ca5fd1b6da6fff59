package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/consertaja/billing/pkg/enums"
)

// StatusChange is the append-only audit row written alongside every tenant
// status transition. Financial reconciliation depends on this trail, so
// transitions are recorded in the same transaction that applies them.
type StatusChange struct {
	ID             uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null;index"`
	SubscriptionID *uuid.UUID              `gorm:"column:subscription_id;type:uuid"`
	FromStatus     enums.TenantStatus      `gorm:"column:from_status;not null"`
	ToStatus       enums.TenantStatus      `gorm:"column:to_status;not null;index"`
	Trigger        enums.TransitionTrigger `gorm:"column:trigger;not null"`

	// GatewayEventID is set when a gateway notification caused the change.
	GatewayEventID string `gorm:"column:gateway_event_id"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
