package enums

import "fmt"

// TenantStatus is the authoritative lifecycle state of a subscribing tenant.
type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusOverdue   TenantStatus = "overdue"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCancelled TenantStatus = "cancelled"
	TenantStatusExpired   TenantStatus = "expired"
)

var validTenantStatuses = []TenantStatus{
	TenantStatusTrial,
	TenantStatusActive,
	TenantStatusOverdue,
	TenantStatusSuspended,
	TenantStatusCancelled,
	TenantStatusExpired,
}

// String implements fmt.Stringer.
func (s TenantStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s TenantStatus) IsValid() bool {
	for _, candidate := range validTenantStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// HasAccess reports whether a tenant in this status may still use the product.
// Overdue tenants keep access during the grace window; cancelled tenants keep
// access until their paid period elapses.
func (s TenantStatus) HasAccess() bool {
	switch s {
	case TenantStatusTrial, TenantStatusActive, TenantStatusOverdue, TenantStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseTenantStatus converts raw input into a TenantStatus.
func ParseTenantStatus(value string) (TenantStatus, error) {
	for _, candidate := range validTenantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tenant status %q", value)
}
