package reconciler

import (
	"context"
	"time"
)

// ChangeSource indicates where a reconcile trigger originated.
type ChangeSource string

const (
	// SourceManifest indicates the manifest file changed on disk.
	SourceManifest ChangeSource = "Manifest"

	// SourceManual indicates the trigger came from an operator command
	// or API call.
	SourceManual ChangeSource = "Manual"
)

// ReconcileRequest asks for one capability to be driven to its desired
// state. A capability absent from the current descriptor set is torn
// down.
type ReconcileRequest struct {
	// Capability is the capability id to reconcile.
	Capability string

	// Attempt is the current retry attempt number (starts at 1).
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error
}

// ReconcileResult represents the outcome of a reconciliation attempt.
type ReconcileResult struct {
	// Requeue indicates whether the capability should be requeued for retry.
	Requeue bool

	// RequeueAfter specifies when to requeue (0 means use default backoff).
	RequeueAfter time.Duration

	// Error is any error that occurred during reconciliation.
	Error error
}

// Reconciler drives one capability toward its declared state. It must
// be idempotent: repeated calls with the same input converge to the
// same cluster state with no additional effect.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult
}

// ReconcileState represents the state of a capability's reconciliation.
type ReconcileState string

const (
	// StatePending means the capability is awaiting reconciliation.
	StatePending ReconcileState = "Pending"

	// StateReconciling means reconciliation is in progress.
	StateReconciling ReconcileState = "Reconciling"

	// StateSynced means the capability is successfully reconciled.
	StateSynced ReconcileState = "Synced"

	// StateError means reconciliation failed and may be retried.
	StateError ReconcileState = "Error"

	// StateFailed means reconciliation failed permanently (max retries exceeded).
	StateFailed ReconcileState = "Failed"
)

// ReconcileStatus is the tracked reconciliation state of one capability.
type ReconcileStatus struct {
	Capability        string
	State             ReconcileState
	LastReconcileTime *time.Time
	LastError         string
	RetryCount        int
}

// ManagerConfig holds configuration for the reconcile Manager.
type ManagerConfig struct {
	// WorkerCount is the number of concurrent reconciliation workers.
	// Defaults to 2 if not specified.
	WorkerCount int

	// MaxRetries is the maximum number of retry attempts for failed
	// reconciliations. Defaults to 5 if not specified.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	// Defaults to 1 second if not specified.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	// Defaults to 5 minutes if not specified.
	MaxBackoff time.Duration

	// DebounceInterval is how long the manifest watcher waits for
	// additional writes before reloading. Defaults to 500ms.
	DebounceInterval time.Duration

	// ReconcileTimeout bounds a single reconciliation attempt.
	// Defaults to 30 seconds.
	ReconcileTimeout time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.WorkerCount == 0 {
		c.WorkerCount = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.DebounceInterval == 0 {
		c.DebounceInterval = 500 * time.Millisecond
	}
	if c.ReconcileTimeout == 0 {
		c.ReconcileTimeout = 30 * time.Second
	}
	return c
}
