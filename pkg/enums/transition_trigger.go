package enums

// TransitionTrigger records which write path caused a status change.
type TransitionTrigger string

const (
	TriggerGatewayEvent   TransitionTrigger = "gateway_event"
	TriggerScheduledSweep TransitionTrigger = "scheduled_sweep"
	TriggerTenantRequest  TransitionTrigger = "tenant_request"
)

// String implements fmt.Stringer.
func (t TransitionTrigger) String() string {
	return string(t)
}
