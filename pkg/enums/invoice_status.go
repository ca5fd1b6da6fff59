package enums

import "fmt"

// InvoiceStatus tracks a billing charge through its fixed partial order:
// pending -> {received|confirmed|overdue} -> {refunded|deleted}.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusReceived  InvoiceStatus = "received"
	InvoiceStatusConfirmed InvoiceStatus = "confirmed"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
	InvoiceStatusDeleted   InvoiceStatus = "deleted"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPending,
	InvoiceStatusReceived,
	InvoiceStatusConfirmed,
	InvoiceStatusOverdue,
	InvoiceStatusRefunded,
	InvoiceStatusDeleted,
}

// String implements fmt.Stringer.
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPaid reports whether the invoice has been settled by the gateway.
func (s InvoiceStatus) IsPaid() bool {
	return s == InvoiceStatusReceived || s == InvoiceStatusConfirmed
}

// IsTerminal reports whether no further transition is allowed.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusRefunded || s == InvoiceStatusDeleted
}

// CanTransitionTo enforces the monotonic partial order. A settled or overdue
// invoice may only move to a terminal status; terminal statuses never revert.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case InvoiceStatusPending:
		return next == InvoiceStatusReceived ||
			next == InvoiceStatusConfirmed ||
			next == InvoiceStatusOverdue ||
			next == InvoiceStatusDeleted
	case InvoiceStatusOverdue:
		// A late payment settles the overdue invoice.
		return next == InvoiceStatusReceived ||
			next == InvoiceStatusConfirmed ||
			next == InvoiceStatusRefunded ||
			next == InvoiceStatusDeleted
	case InvoiceStatusReceived:
		return next == InvoiceStatusConfirmed ||
			next == InvoiceStatusRefunded ||
			next == InvoiceStatusDeleted
	case InvoiceStatusConfirmed:
		return next == InvoiceStatusRefunded || next == InvoiceStatusDeleted
	default:
		return false
	}
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}
