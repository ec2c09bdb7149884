package reconciler

import (
	"context"

	"capstan/internal/manifest"
	"capstan/internal/orchestrator"
)

// CapabilityReconciler drives one capability toward the state the
// current descriptor set declares: declared capabilities are deployed
// or updated, undeclared ones are torn down.
type CapabilityReconciler struct {
	store        *manifest.Store
	orchestrator *orchestrator.Orchestrator
}

// NewCapabilityReconciler creates a reconciler over the given
// descriptor store and orchestrator.
func NewCapabilityReconciler(store *manifest.Store, orch *orchestrator.Orchestrator) *CapabilityReconciler {
	return &CapabilityReconciler{store: store, orchestrator: orch}
}

func (r *CapabilityReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	var outcome orchestrator.Outcome
	if d, ok := r.store.Get(req.Capability); ok {
		outcome = r.orchestrator.Deploy(ctx, []*manifest.Descriptor{d})[0]
	} else {
		outcome = r.orchestrator.Teardown(ctx, req.Capability)
	}

	if outcome.Err != nil {
		return ReconcileResult{Requeue: true, Error: outcome.Err}
	}
	return ReconcileResult{}
}
