package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

// CheckHealth probes the capability's health path on a freshly
// resolved endpoint. A nil return means the backend answered with a
// 2xx status.
func (r *Router) CheckHealth(ctx context.Context, id string) error {
	d, ok := r.store.Get(id)
	if !ok {
		return &InvokeError{Kind: KindNotFound, Capability: id, Message: "no such capability"}
	}

	endpoint, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return &InvokeError{Kind: KindNotFound, Capability: id, Message: "no ready endpoint", Cause: err}
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint.URL()+d.Network.HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.resolver.Invalidate(id)
		return &InvokeError{Kind: KindUnavailable, Capability: id, Message: "health probe failed", Attempts: 1, Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &InvokeError{
			Kind:       KindUnavailable,
			Capability: id,
			Message:    fmt.Sprintf("health probe returned status %d", resp.StatusCode),
			Attempts:   1,
		}
	}
	return nil
}
