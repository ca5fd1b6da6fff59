package enums

import "fmt"

// GatewayEventType identifies a normalized payment-gateway notification.
type GatewayEventType string

const (
	GatewayEventPaymentCreated   GatewayEventType = "PAYMENT_CREATED"
	GatewayEventPaymentReceived  GatewayEventType = "PAYMENT_RECEIVED"
	GatewayEventPaymentConfirmed GatewayEventType = "PAYMENT_CONFIRMED"
	GatewayEventPaymentOverdue   GatewayEventType = "PAYMENT_OVERDUE"
	GatewayEventPaymentRefunded  GatewayEventType = "PAYMENT_REFUNDED"
	GatewayEventPaymentDeleted   GatewayEventType = "PAYMENT_DELETED"
)

var validGatewayEventTypes = []GatewayEventType{
	GatewayEventPaymentCreated,
	GatewayEventPaymentReceived,
	GatewayEventPaymentConfirmed,
	GatewayEventPaymentOverdue,
	GatewayEventPaymentRefunded,
	GatewayEventPaymentDeleted,
}

// String implements fmt.Stringer.
func (t GatewayEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known GatewayEventType.
func (t GatewayEventType) IsValid() bool {
	for _, candidate := range validGatewayEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsPayment reports whether the event settles an invoice.
func (t GatewayEventType) IsPayment() bool {
	return t == GatewayEventPaymentReceived || t == GatewayEventPaymentConfirmed
}

// InvoiceStatus maps the event onto the invoice status it implies.
func (t GatewayEventType) InvoiceStatus() (InvoiceStatus, bool) {
	switch t {
	case GatewayEventPaymentReceived:
		return InvoiceStatusReceived, true
	case GatewayEventPaymentConfirmed:
		return InvoiceStatusConfirmed, true
	case GatewayEventPaymentOverdue:
		return InvoiceStatusOverdue, true
	case GatewayEventPaymentRefunded:
		return InvoiceStatusRefunded, true
	case GatewayEventPaymentDeleted:
		return InvoiceStatusDeleted, true
	default:
		return "", false
	}
}

// ParseGatewayEventType converts raw input into a GatewayEventType.
func ParseGatewayEventType(value string) (GatewayEventType, error) {
	for _, candidate := range validGatewayEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway event type %q", value)
}
