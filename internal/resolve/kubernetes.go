package resolve

import (
	"context"
	"fmt"
	"sync/atomic"

	"capstan/internal/manifest"
	"capstan/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// KubernetesResolver resolves capabilities through the cluster's
// Endpoints objects, filtered to addresses whose backing pods pass
// their readiness probe. The service name is derived from the
// capability id by an injected naming function so the resolver does
// not depend on the deployment layer.
type KubernetesResolver struct {
	client      kubernetes.Interface
	namespace   string
	serviceName func(id string) string
	store       *manifest.Store

	// round-robin cursor across ready addresses, per process
	cursor atomic.Uint64
}

// NewKubernetesResolver creates a resolver backed by the given
// clientset and namespace.
func NewKubernetesResolver(client kubernetes.Interface, namespace string, serviceName func(string) string, store *manifest.Store) *KubernetesResolver {
	return &KubernetesResolver{
		client:      client,
		namespace:   namespace,
		serviceName: serviceName,
		store:       store,
	}
}

func (r *KubernetesResolver) Resolve(ctx context.Context, id string) (Endpoint, error) {
	d, ok := r.store.Get(id)
	if !ok {
		return Endpoint{}, fmt.Errorf("capability %s: %w", id, ErrUnknownCapability)
	}

	name := r.serviceName(id)
	endpoints, err := r.client.CoreV1().Endpoints(r.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return Endpoint{}, fmt.Errorf("capability %s has no service %s/%s: %w", id, r.namespace, name, ErrNoEndpoints)
		}
		return Endpoint{}, fmt.Errorf("querying endpoints %s/%s: %w", r.namespace, name, err)
	}

	candidates := readyEndpoints(endpoints.Subsets, d.Network.Port)
	if len(candidates) == 0 {
		logging.Debug("Resolver", "Capability %s: service %s has no ready backends", id, name)
		return Endpoint{}, fmt.Errorf("capability %s: %w", id, ErrNoEndpoints)
	}

	// Spread successive resolutions across the ready backends.
	idx := r.cursor.Add(1) % uint64(len(candidates))
	return candidates[idx], nil
}

// Invalidate is a no-op for the raw resolver; caching (and therefore
// invalidation) lives in the CachedResolver wrapper.
func (r *KubernetesResolver) Invalidate(string) {}

// readyEndpoints flattens the ready addresses of all subsets into
// endpoints on the capability's declared port. Addresses listed under
// NotReadyAddresses are excluded, and so is any subset that does not
// serve the declared port: routing to an undeclared port would break
// the capability's contract.
func readyEndpoints(subsets []corev1.EndpointSubset, targetPort int) []Endpoint {
	var out []Endpoint
	for _, subset := range subsets {
		if !servesPort(subset, targetPort) {
			continue
		}
		for _, addr := range subset.Addresses {
			out = append(out, Endpoint{Host: addr.IP, Port: targetPort})
		}
	}
	return out
}

func servesPort(subset corev1.EndpointSubset, targetPort int) bool {
	for _, p := range subset.Ports {
		if int(p.Port) == targetPort {
			return true
		}
	}
	return false
}
