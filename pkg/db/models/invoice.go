package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consertaja/billing/pkg/enums"
)

// Invoice is one billing charge belonging to a subscription. Rows are created
// when the gateway confirms a charge exists and updated only by the
// reconciliation engine in response to gateway events.
type Invoice struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status         enums.InvoiceStatus `gorm:"column:status;not null;default:'pending';index"`

	DueDate time.Time  `gorm:"column:due_date;not null;index"`
	PaidAt  *time.Time `gorm:"column:paid_at"`

	GatewayPaymentID string `gorm:"column:gateway_payment_id;uniqueIndex;not null"`
	InvoiceURL       string `gorm:"column:invoice_url"`
	BankSlipURL      string `gorm:"column:bank_slip_url"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
