package orchestrator

import (
	"context"
	"fmt"

	"capstan/internal/manifest"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ensureAutoscaler keeps the capability's HorizontalPodAutoscaler in
// sync with the declared policy: installed and updated while the
// policy is enabled, removed when it is not. The scale decisions are
// the cluster's; only the bounds and target are reconciled here.
func (o *Orchestrator) ensureAutoscaler(ctx context.Context, d *manifest.Descriptor) (*Change, error) {
	autoscalers := o.client.AutoscalingV2().HorizontalPodAutoscalers(o.namespace)
	name := WorkloadName(d.ID)

	if !d.Autoscaling.Enabled {
		err := autoscalers.Delete(ctx, name, metav1.DeleteOptions{})
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("deleting autoscaler %s: %w", name, err)
		}
		return &Change{Resource: "autoscaler", Op: OpDelete}, nil
	}

	desired := desiredAutoscaler(d, o.namespace)
	observed, err := autoscalers.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := autoscalers.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("creating autoscaler %s: %w", name, err)
		}
		return &Change{Resource: "autoscaler", Op: OpCreate}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading autoscaler %s: %w", name, err)
	}

	if !autoscalerNeedsUpdate(desired, observed) {
		return nil, nil
	}
	updated := observed.DeepCopy()
	updated.Spec = desired.Spec
	if _, err := autoscalers.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return nil, fmt.Errorf("updating autoscaler %s: %w", name, err)
	}
	return &Change{Resource: "autoscaler", Op: OpUpdate}, nil
}

// autoscalerNeedsUpdate compares the declared bounds and target
// against the observed spec.
func autoscalerNeedsUpdate(desired, observed *autoscalingv2.HorizontalPodAutoscaler) bool {
	if !equality.Semantic.DeepEqual(desired.Spec.MinReplicas, observed.Spec.MinReplicas) {
		return true
	}
	if desired.Spec.MaxReplicas != observed.Spec.MaxReplicas {
		return true
	}
	if !equality.Semantic.DeepEqual(desired.Spec.Metrics, observed.Spec.Metrics) {
		return true
	}
	return desired.Spec.ScaleTargetRef != observed.Spec.ScaleTargetRef
}
