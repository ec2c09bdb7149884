package events

import (
	"time"
)

// EventType represents the severity class of an event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

// Invocation event reasons
const (
	// ReasonInvocationSucceeded indicates a capability call returned a result.
	ReasonInvocationSucceeded EventReason = "InvocationSucceeded"

	// ReasonInvocationFailed indicates a capability call ended in an error
	// after its retry budget.
	ReasonInvocationFailed EventReason = "InvocationFailed"

	// ReasonInvocationRejected indicates the arguments were rejected before
	// any network activity.
	ReasonInvocationRejected EventReason = "InvocationRejected"
)

// Deployment event reasons
const (
	// ReasonCapabilityDeployed indicates a capability workload was created.
	ReasonCapabilityDeployed EventReason = "CapabilityDeployed"

	// ReasonCapabilityUpdated indicates a capability workload was updated in place.
	ReasonCapabilityUpdated EventReason = "CapabilityUpdated"

	// ReasonCapabilityUndeployed indicates a capability workload was torn down.
	ReasonCapabilityUndeployed EventReason = "CapabilityUndeployed"

	// ReasonCapabilityScaled indicates a manual replica change was applied.
	ReasonCapabilityScaled EventReason = "CapabilityScaled"

	// ReasonReconcileFailed indicates reconciliation of one capability failed.
	ReasonReconcileFailed EventReason = "ReconcileFailed"
)

// Manifest event reasons
const (
	// ReasonManifestLoaded indicates a manifest compile succeeded and the
	// descriptor set was swapped.
	ReasonManifestLoaded EventReason = "ManifestLoaded"

	// ReasonManifestRejected indicates a manifest reload failed compilation;
	// the previous descriptor set stays in effect.
	ReasonManifestRejected EventReason = "ManifestRejected"
)

// EventData carries the variable parts of an event message.
type EventData struct {
	// Capability is the capability id the event is about.
	Capability string

	// Namespace is the cluster namespace for deployment events.
	Namespace string

	// Operation is the operation that triggered the event (e.g. "create", "update", "delete").
	Operation string

	// Arguments contains the invocation arguments for invocation events.
	Arguments map[string]interface{}

	// Outcome is "result" or "error" for invocation events.
	Outcome string

	// Error contains error information for failure events.
	Error string

	// Attempts is the number of invocation attempts made.
	Attempts int

	// Duration is the total duration of the operation.
	Duration time.Duration

	// Replicas is the replica count for scaling events.
	Replicas int32
}

// Event is one published occurrence, delivered to subscribers.
type Event struct {
	Reason    EventReason
	Type      EventType
	Message   string
	Data      EventData
	Timestamp time.Time
}

// getEventType returns the appropriate EventType for a given EventReason.
func getEventType(reason EventReason) EventType {
	switch reason {
	case ReasonInvocationFailed,
		ReasonInvocationRejected,
		ReasonReconcileFailed,
		ReasonManifestRejected:
		return EventTypeWarning
	default:
		return EventTypeNormal
	}
}
