package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func svcName(id string) string { return "capstan-" + id }

func endpointsObject(name string, ready []string, notReady []string, port int32) *corev1.Endpoints {
	subset := corev1.EndpointSubset{
		Ports: []corev1.EndpointPort{{Name: "http", Port: port}},
	}
	for _, ip := range ready {
		subset.Addresses = append(subset.Addresses, corev1.EndpointAddress{IP: ip})
	}
	for _, ip := range notReady {
		subset.NotReadyAddresses = append(subset.NotReadyAddresses, corev1.EndpointAddress{IP: ip})
	}
	return &corev1.Endpoints{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "capstan"},
		Subsets:    []corev1.EndpointSubset{subset},
	}
}

func TestKubernetesResolver_ReadyAddress(t *testing.T) {
	client := fake.NewSimpleClientset(
		endpointsObject(svcName("calc"), []string{"10.0.0.5"}, nil, 8080),
	)
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	ep, err := r.Resolve(context.Background(), "calc")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "10.0.0.5", Port: 8080}, ep)
}

func TestKubernetesResolver_FiltersNotReady(t *testing.T) {
	// Only the ready address may be returned.
	client := fake.NewSimpleClientset(
		endpointsObject(svcName("calc"), []string{"10.0.0.5"}, []string{"10.0.0.6", "10.0.0.7"}, 8080),
	)
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	for i := 0; i < 5; i++ {
		ep, err := r.Resolve(context.Background(), "calc")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5", ep.Host)
	}
}

func TestKubernetesResolver_ZeroReadyBackends(t *testing.T) {
	client := fake.NewSimpleClientset(
		endpointsObject(svcName("calc"), nil, []string{"10.0.0.6"}, 8080),
	)
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	_, err := r.Resolve(context.Background(), "calc")
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestKubernetesResolver_UndeclaredPortIsNotRouted(t *testing.T) {
	// The subset serves 9999 but the contract declares 8080; guessing
	// another port would route around the contract.
	client := fake.NewSimpleClientset(
		endpointsObject(svcName("calc"), []string{"10.0.0.5"}, nil, 9999),
	)
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	_, err := r.Resolve(context.Background(), "calc")
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestKubernetesResolver_ServiceAbsent(t *testing.T) {
	client := fake.NewSimpleClientset()
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	_, err := r.Resolve(context.Background(), "calc")
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestKubernetesResolver_UnknownCapability(t *testing.T) {
	client := fake.NewSimpleClientset()
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	_, err := r.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestKubernetesResolver_RoundRobin(t *testing.T) {
	client := fake.NewSimpleClientset(
		endpointsObject(svcName("calc"), []string{"10.0.0.1", "10.0.0.2"}, nil, 8080),
	)
	r := NewKubernetesResolver(client, "capstan", svcName, testStore(t))

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		ep, err := r.Resolve(context.Background(), "calc")
		require.NoError(t, err)
		seen[ep.Host]++
	}
	assert.Equal(t, 2, seen["10.0.0.1"])
	assert.Equal(t, 2, seen["10.0.0.2"])
}
