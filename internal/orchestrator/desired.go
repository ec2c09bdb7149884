package orchestrator

import (
	"fmt"
	"strings"

	"capstan/internal/manifest"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// desiredDeployment builds the workload a descriptor declares. Desired
// state is a pure function of the descriptor; the reconciler never
// derives it from what is observed in the cluster.
func desiredDeployment(d *manifest.Descriptor, namespace string) (*appsv1.Deployment, error) {
	resources, err := resourceRequirements(d.Resources)
	if err != nil {
		return nil, err
	}
	env, err := containerEnv(d.Env)
	if err != nil {
		return nil, err
	}

	replicas := int32(1)
	if d.Autoscaling.Enabled && d.Autoscaling.MinReplicas > 0 {
		replicas = d.Autoscaling.MinReplicas
	}
	labels := managedLabels(d.ID)

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      WorkloadName(d.ID),
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "capability",
						Image: d.Image,
						Ports: []corev1.ContainerPort{{
							Name:          "http",
							ContainerPort: int32(d.Network.Port),
						}},
						Env:       env,
						Resources: resources,
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								HTTPGet: &corev1.HTTPGetAction{
									Path: d.Network.HealthPath,
									Port: intstr.FromInt32(int32(d.Network.Port)),
								},
							},
							InitialDelaySeconds: 3,
							PeriodSeconds:       10,
						},
					}},
				},
			},
		},
	}, nil
}

// desiredService exposes the workload under the stable name the
// dynamic resolver looks up.
func desiredService(d *manifest.Descriptor, namespace string) *corev1.Service {
	labels := managedLabels(d.ID)
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      WorkloadName(d.ID),
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       int32(d.Network.Port),
				TargetPort: intstr.FromInt32(int32(d.Network.Port)),
			}},
		},
	}
}

// desiredAutoscaler translates the declared policy into the cluster's
// native scaling primitive. The scaling decision loop itself belongs
// to the cluster; only the bounds and target are owned here.
func desiredAutoscaler(d *manifest.Descriptor, namespace string) *autoscalingv2.HorizontalPodAutoscaler {
	minReplicas := d.Autoscaling.MinReplicas
	target := d.Autoscaling.TargetUtilization
	return &autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{
			Name:      WorkloadName(d.ID),
			Namespace: namespace,
			Labels:    managedLabels(d.ID),
		},
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: autoscalingv2.CrossVersionObjectReference{
				APIVersion: "apps/v1",
				Kind:       "Deployment",
				Name:       WorkloadName(d.ID),
			},
			MinReplicas: &minReplicas,
			MaxReplicas: d.Autoscaling.MaxReplicas,
			Metrics: []autoscalingv2.MetricSpec{{
				Type: autoscalingv2.ResourceMetricSourceType,
				Resource: &autoscalingv2.ResourceMetricSource{
					Name: corev1.ResourceCPU,
					Target: autoscalingv2.MetricTarget{
						Type:               autoscalingv2.UtilizationMetricType,
						AverageUtilization: &target,
					},
				},
			}},
		},
	}
}

// resourceRequirements parses the descriptor's opaque quantities. The
// compiler does not interpret them, so a malformed quantity surfaces
// here as a per-capability reconcile failure.
func resourceRequirements(p manifest.ResourcePolicy) (corev1.ResourceRequirements, error) {
	requirements := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	entries := []struct {
		value string
		list  corev1.ResourceList
		name  corev1.ResourceName
		field string
	}{
		{p.CPURequest, requirements.Requests, corev1.ResourceCPU, "cpuRequest"},
		{p.CPULimit, requirements.Limits, corev1.ResourceCPU, "cpuLimit"},
		{p.MemoryRequest, requirements.Requests, corev1.ResourceMemory, "memoryRequest"},
		{p.MemoryLimit, requirements.Limits, corev1.ResourceMemory, "memoryLimit"},
	}
	for _, e := range entries {
		if e.value == "" {
			continue
		}
		quantity, err := resource.ParseQuantity(e.value)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("invalid %s quantity %q: %w", e.field, e.value, err)
		}
		e.list[e.name] = quantity
	}
	if len(requirements.Requests) == 0 {
		requirements.Requests = nil
	}
	if len(requirements.Limits) == 0 {
		requirements.Limits = nil
	}
	return requirements, nil
}

// containerEnv maps manifest env entries to container variables. A
// secret reference "name/key" becomes a SecretKeyRef.
func containerEnv(env []manifest.EnvVar) ([]corev1.EnvVar, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make([]corev1.EnvVar, 0, len(env))
	for _, e := range env {
		if e.SecretRef == "" {
			out = append(out, corev1.EnvVar{Name: e.Name, Value: e.Value})
			continue
		}
		parts := strings.SplitN(e.SecretRef, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid secretRef %q for env %s", e.SecretRef, e.Name)
		}
		out = append(out, corev1.EnvVar{
			Name: e.Name,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: parts[0]},
					Key:                  parts[1],
				},
			},
		})
	}
	return out, nil
}
