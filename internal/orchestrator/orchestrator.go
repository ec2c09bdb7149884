package orchestrator

import (
	"context"
	"fmt"

	"capstan/internal/events"
	"capstan/internal/manifest"
	"capstan/pkg/logging"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// teardownScanID labels the outcome of a failed orphan scan, which
// belongs to no single capability.
const teardownScanID = "<teardown-scan>"

// Op names a mutating operation the orchestrator performed.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change records one applied mutation.
type Change struct {
	Resource string // "deployment", "service", "autoscaler"
	Op       Op
}

// Outcome is the per-capability result of a deploy, undeploy, or
// reconcile pass. A failed capability never aborts the others.
type Outcome struct {
	ID      string
	Changes []Change
	Err     error
}

// Failed reports whether the capability's reconciliation failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Orchestrator drives the cluster's observed state toward the state
// the descriptors declare, with create-if-absent, update-in-place,
// delete-if-present operations that are each independently idempotent.
type Orchestrator struct {
	client    kubernetes.Interface
	namespace string
	bus       *events.Bus
}

// New creates an orchestrator operating in the given namespace.
func New(client kubernetes.Interface, namespace string, bus *events.Bus) *Orchestrator {
	return &Orchestrator{client: client, namespace: namespace, bus: bus}
}

// Namespace returns the namespace the orchestrator manages.
func (o *Orchestrator) Namespace() string {
	return o.namespace
}

// Deploy ensures workload, service, and autoscaling rule for each
// descriptor, reporting one outcome per capability.
func (o *Orchestrator) Deploy(ctx context.Context, descriptors []*manifest.Descriptor) []Outcome {
	outcomes := make([]Outcome, 0, len(descriptors))
	for _, d := range descriptors {
		outcomes = append(outcomes, o.ensureCapability(ctx, d))
	}
	return outcomes
}

// Undeploy tears down each descriptor's workload, service, and
// autoscaling rule. Deleting what is already absent is not an error.
func (o *Orchestrator) Undeploy(ctx context.Context, descriptors []*manifest.Descriptor) []Outcome {
	outcomes := make([]Outcome, 0, len(descriptors))
	for _, d := range descriptors {
		outcomes = append(outcomes, o.removeCapability(ctx, d.ID))
	}
	return outcomes
}

// Teardown removes the workload, service, and autoscaling rule of a
// single capability id, whether or not it is still declared.
func (o *Orchestrator) Teardown(ctx context.Context, id string) Outcome {
	return o.removeCapability(ctx, id)
}

// Reconcile drives the namespace to exactly the given descriptor set:
// every declared capability is ensured, and every capstan-managed
// workload whose capability is no longer declared is torn down.
func (o *Orchestrator) Reconcile(ctx context.Context, set *manifest.Set) []Outcome {
	outcomes := o.Deploy(ctx, set.All())

	orphans, err := o.orphanedCapabilities(ctx, set)
	if err != nil {
		outcomes = append(outcomes, Outcome{ID: teardownScanID, Err: fmt.Errorf("listing managed workloads: %w", err)})
		return outcomes
	}
	for _, id := range orphans {
		logging.Info("Orchestrator", "Capability %s no longer declared, tearing down", id)
		outcomes = append(outcomes, o.removeCapability(ctx, id))
	}
	return outcomes
}

// orphanedCapabilities lists capstan-managed deployments whose
// capability id is absent from the descriptor set.
func (o *Orchestrator) orphanedCapabilities(ctx context.Context, set *manifest.Set) ([]string, error) {
	deployments, err := o.client.AppsV1().Deployments(o.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: managedSelector,
	})
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, deployment := range deployments.Items {
		id := deployment.Labels[labelCapability]
		if id == "" {
			continue
		}
		if _, declared := set.Get(id); !declared {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// ensureCapability applies the full desired state for one descriptor.
func (o *Orchestrator) ensureCapability(ctx context.Context, d *manifest.Descriptor) Outcome {
	outcome := Outcome{ID: d.ID}

	fail := func(err error) Outcome {
		outcome.Err = err
		logging.Error("Orchestrator", err, "Reconciling capability %s failed", d.ID)
		o.publish(events.ReasonReconcileFailed, events.EventData{
			Capability: d.ID,
			Namespace:  o.namespace,
			Error:      err.Error(),
		})
		return outcome
	}

	change, err := o.ensureDeployment(ctx, d)
	if err != nil {
		return fail(err)
	}
	outcome.record(change)

	svcChange, err := o.ensureService(ctx, d)
	if err != nil {
		return fail(err)
	}
	outcome.record(svcChange)

	hpaChange, err := o.ensureAutoscaler(ctx, d)
	if err != nil {
		return fail(err)
	}
	outcome.record(hpaChange)

	switch {
	case change != nil && change.Op == OpCreate:
		o.publish(events.ReasonCapabilityDeployed, events.EventData{Capability: d.ID, Namespace: o.namespace})
	case len(outcome.Changes) > 0:
		o.publish(events.ReasonCapabilityUpdated, events.EventData{Capability: d.ID, Namespace: o.namespace})
	}
	return outcome
}

// removeCapability deletes all objects owned for the capability id.
func (o *Orchestrator) removeCapability(ctx context.Context, id string) Outcome {
	outcome := Outcome{ID: id}
	name := WorkloadName(id)

	deleted := false
	for _, del := range []struct {
		resource string
		delete   func() error
	}{
		{"autoscaler", func() error {
			return o.client.AutoscalingV2().HorizontalPodAutoscalers(o.namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
		{"service", func() error {
			return o.client.CoreV1().Services(o.namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
		{"deployment", func() error {
			return o.client.AppsV1().Deployments(o.namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
	} {
		err := del.delete()
		if apierrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			outcome.Err = fmt.Errorf("deleting %s %s: %w", del.resource, name, err)
			logging.Error("Orchestrator", err, "Tearing down capability %s failed", id)
			o.publish(events.ReasonReconcileFailed, events.EventData{
				Capability: id,
				Namespace:  o.namespace,
				Error:      outcome.Err.Error(),
			})
			return outcome
		}
		deleted = true
		outcome.record(&Change{Resource: del.resource, Op: OpDelete})
	}

	if deleted {
		o.publish(events.ReasonCapabilityUndeployed, events.EventData{Capability: id, Namespace: o.namespace})
	}
	return outcome
}

func (o *Orchestrator) ensureDeployment(ctx context.Context, d *manifest.Descriptor) (*Change, error) {
	desired, err := desiredDeployment(d, o.namespace)
	if err != nil {
		return nil, err
	}

	deployments := o.client.AppsV1().Deployments(o.namespace)
	observed, err := deployments.Get(ctx, desired.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := deployments.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("creating deployment %s: %w", desired.Name, err)
		}
		return &Change{Resource: "deployment", Op: OpCreate}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading deployment %s: %w", desired.Name, err)
	}

	if !deploymentNeedsUpdate(desired, observed, d.Autoscaling.Enabled) {
		return nil, nil
	}
	updated := observed.DeepCopy()
	updated.Labels = desired.Labels
	updated.Spec.Template = desired.Spec.Template
	if !d.Autoscaling.Enabled {
		updated.Spec.Replicas = desired.Spec.Replicas
	}
	if _, err := deployments.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return nil, fmt.Errorf("updating deployment %s: %w", desired.Name, err)
	}
	return &Change{Resource: "deployment", Op: OpUpdate}, nil
}

func (o *Orchestrator) ensureService(ctx context.Context, d *manifest.Descriptor) (*Change, error) {
	desired := desiredService(d, o.namespace)

	services := o.client.CoreV1().Services(o.namespace)
	observed, err := services.Get(ctx, desired.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := services.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("creating service %s: %w", desired.Name, err)
		}
		return &Change{Resource: "service", Op: OpCreate}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading service %s: %w", desired.Name, err)
	}

	if equality.Semantic.DeepEqual(desired.Spec.Ports, observed.Spec.Ports) &&
		equality.Semantic.DeepEqual(desired.Spec.Selector, observed.Spec.Selector) {
		return nil, nil
	}
	updated := observed.DeepCopy()
	updated.Spec.Ports = desired.Spec.Ports
	updated.Spec.Selector = desired.Spec.Selector
	if _, err := services.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return nil, fmt.Errorf("updating service %s: %w", desired.Name, err)
	}
	return &Change{Resource: "service", Op: OpUpdate}, nil
}

// deploymentNeedsUpdate compares only the fields the orchestrator
// owns; cluster-defaulted fields never trigger an update.
func deploymentNeedsUpdate(desired, observed *appsv1.Deployment, autoscaled bool) bool {
	if len(observed.Spec.Template.Spec.Containers) != 1 {
		return true
	}
	dc := desired.Spec.Template.Spec.Containers[0]
	oc := observed.Spec.Template.Spec.Containers[0]
	if dc.Image != oc.Image ||
		!equality.Semantic.DeepEqual(dc.Env, oc.Env) ||
		!equality.Semantic.DeepEqual(dc.Ports, oc.Ports) ||
		!equality.Semantic.DeepEqual(dc.Resources, oc.Resources) {
		return true
	}
	if !equality.Semantic.DeepEqual(desired.Spec.Template.Labels, observed.Spec.Template.Labels) {
		return true
	}
	// Replica count is only owned here while the cluster's scaler is
	// not; otherwise the autoscaler decides.
	if !autoscaled && !equality.Semantic.DeepEqual(desired.Spec.Replicas, observed.Spec.Replicas) {
		return true
	}
	return false
}

// Scale sets the replica count of a deployed capability directly.
func (o *Orchestrator) Scale(ctx context.Context, id string, replicas int32) error {
	if replicas < 0 {
		return fmt.Errorf("replica count must not be negative, got %d", replicas)
	}
	deployments := o.client.AppsV1().Deployments(o.namespace)
	observed, err := deployments.Get(ctx, WorkloadName(id), metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("reading deployment for capability %s: %w", id, err)
	}
	updated := observed.DeepCopy()
	updated.Spec.Replicas = &replicas
	if _, err := deployments.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("scaling capability %s: %w", id, err)
	}
	logging.Info("Orchestrator", "Scaled capability %s to %d replicas", id, replicas)
	o.publish(events.ReasonCapabilityScaled, events.EventData{
		Capability: id,
		Namespace:  o.namespace,
		Replicas:   replicas,
	})
	return nil
}

// CapabilityStatus is one row of the deployment status report.
type CapabilityStatus struct {
	ID              string
	Image           string
	DesiredReplicas int32
	ReadyReplicas   int32
	Autoscaled      bool
	MinReplicas     int32
	MaxReplicas     int32
}

// Status reports the observed state of every managed capability.
func (o *Orchestrator) Status(ctx context.Context) ([]CapabilityStatus, error) {
	deployments, err := o.client.AppsV1().Deployments(o.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: managedSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("listing managed deployments: %w", err)
	}

	autoscalers, err := o.client.AutoscalingV2().HorizontalPodAutoscalers(o.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: managedSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("listing autoscalers: %w", err)
	}
	hpaByName := make(map[string]*autoscalingv2.HorizontalPodAutoscaler, len(autoscalers.Items))
	for i := range autoscalers.Items {
		hpaByName[autoscalers.Items[i].Name] = &autoscalers.Items[i]
	}

	statuses := make([]CapabilityStatus, 0, len(deployments.Items))
	for _, deployment := range deployments.Items {
		status := CapabilityStatus{
			ID:            deployment.Labels[labelCapability],
			Image:         containerImage(&deployment),
			ReadyReplicas: deployment.Status.ReadyReplicas,
		}
		if deployment.Spec.Replicas != nil {
			status.DesiredReplicas = *deployment.Spec.Replicas
		}
		if hpa, ok := hpaByName[deployment.Name]; ok {
			status.Autoscaled = true
			if hpa.Spec.MinReplicas != nil {
				status.MinReplicas = *hpa.Spec.MinReplicas
			}
			status.MaxReplicas = hpa.Spec.MaxReplicas
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func containerImage(deployment *appsv1.Deployment) string {
	if len(deployment.Spec.Template.Spec.Containers) > 0 {
		return deployment.Spec.Template.Spec.Containers[0].Image
	}
	return ""
}

func (o *Outcome) record(change *Change) {
	if change != nil {
		o.Changes = append(o.Changes, *change)
	}
}

func (o *Orchestrator) publish(reason events.EventReason, data events.EventData) {
	if o.bus != nil {
		o.bus.Publish(reason, data)
	}
}
