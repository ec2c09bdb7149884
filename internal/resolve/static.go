package resolve

import (
	"context"
	"fmt"

	"capstan/internal/manifest"
)

// StaticResolver derives endpoints from a configured hostname pattern.
// It is used when every capability runs on a fixed local network under
// a predictable name, such as containers on one compose network. It
// performs no health checks: resolution succeeds whenever the id is
// known.
type StaticResolver struct {
	store   *manifest.Store
	pattern string // hostname pattern, %s is the capability id
}

// NewStaticResolver creates a resolver that maps capability ids to
// hostnames via the given pattern.
func NewStaticResolver(store *manifest.Store, pattern string) *StaticResolver {
	return &StaticResolver{store: store, pattern: pattern}
}

func (r *StaticResolver) Resolve(_ context.Context, id string) (Endpoint, error) {
	d, ok := r.store.Get(id)
	if !ok {
		return Endpoint{}, fmt.Errorf("capability %s: %w", id, ErrUnknownCapability)
	}
	return Endpoint{
		Host: fmt.Sprintf(r.pattern, id),
		Port: d.Network.Port,
	}, nil
}

// Invalidate is a no-op: static endpoints are a pure function of the
// capability id.
func (r *StaticResolver) Invalidate(string) {}
