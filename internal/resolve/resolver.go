package resolve

import (
	"context"
	"errors"
	"fmt"
)

// Endpoint is a momentarily valid network address for a capability.
// Endpoints are never persisted; callers borrow one for a single call
// and re-resolve afterwards.
type Endpoint struct {
	Host string
	Port int
}

// URL returns the base URL for the endpoint.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// Addr returns the host:port form of the endpoint.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ErrUnknownCapability is returned when no capability with the given
// id exists in the current descriptor set.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrNoEndpoints is returned when a capability is known but has no
// ready backend at resolution time. Callers treat this as retryable;
// the resolver itself never retries.
var ErrNoEndpoints = errors.New("no ready endpoints")

// Resolver locates a currently reachable endpoint for a capability id.
// Implementations differ by deployment topology; the invocation path
// only ever sees this interface.
type Resolver interface {
	// Resolve returns an endpoint for the capability, or
	// ErrUnknownCapability / ErrNoEndpoints.
	Resolve(ctx context.Context, id string) (Endpoint, error)

	// Invalidate drops any cached endpoint for the capability. Called
	// with negative feedback after a connection failure so the next
	// attempt resolves fresh.
	Invalidate(id string)
}
