package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"capstan/internal/manifest"
	"capstan/internal/resolve"
	"capstan/pkg/logging"

	"github.com/google/uuid"
)

const correlationCallID = "call_id"

// Config holds the router-wide invocation defaults. A descriptor's
// network contract overrides timeout and retry budget per capability.
type Config struct {
	DefaultTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterEnabled  bool
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterEnabled:  true,
	}
}

// Result is a successful invocation outcome.
type Result struct {
	Value    interface{}
	Attempts int
	Duration time.Duration
}

// Router executes capability invocations: argument validation,
// endpoint resolution, the remote call under timeout, retry with
// backoff, and error classification. A Router is safe for concurrent
// use; unrelated invocations share nothing but the resolver cache.
type Router struct {
	store    *manifest.Store
	resolver resolve.Resolver
	client   *http.Client
	config   Config

	mu        sync.RWMutex
	observers []Observer
}

// New creates a router over the given descriptor store and resolver.
func New(store *manifest.Store, resolver resolve.Resolver, config Config) *Router {
	return &Router{
		store:    store,
		resolver: resolver,
		client:   &http.Client{},
		config:   config,
	}
}

// AddObserver registers an observer for invocation completions.
func (r *Router) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// wireResponse mirrors InvokeResponse but keeps the result raw so a
// present-but-null result is distinguishable from an absent one.
type wireResponse struct {
	Result json.RawMessage  `json:"result"`
	Error  *CapabilityFault `json:"error"`
}

// Invoke validates the arguments, resolves an endpoint and performs
// the remote call, retrying transient failures within the retry
// budget. It returns either a Result or an *InvokeError; exactly one
// completion event is emitted per call.
func (r *Router) Invoke(ctx context.Context, id string, args map[string]interface{}, correlation map[string]string) (*Result, error) {
	start := time.Now()
	attempts := 0

	notify := func(outcome string, kind ErrorKind) {
		event := InvocationEvent{
			Capability: id,
			Arguments:  args,
			Outcome:    outcome,
			ErrorKind:  kind,
			Attempts:   attempts,
			Duration:   time.Since(start),
		}
		r.mu.RLock()
		observers := r.observers
		r.mu.RUnlock()
		for _, o := range observers {
			o.InvocationCompleted(event)
		}
	}

	d, ok := r.store.Get(id)
	if !ok {
		err := &InvokeError{Kind: KindNotFound, Capability: id, Message: "no such capability"}
		notify("error", KindNotFound)
		return nil, err
	}

	effective, err := buildArguments(d, args)
	if err != nil {
		notify("error", KindValidation)
		return nil, err
	}

	body, err := json.Marshal(InvokeRequest{
		Args:        effective,
		Correlation: withCallID(correlation),
	})
	if err != nil {
		notify("error", KindValidation)
		return nil, &InvokeError{Kind: KindValidation, Capability: id, Message: "arguments are not serializable", Cause: err}
	}

	timeout := d.Network.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	// An explicit zero in the contract disables retries; only an
	// absent value falls back to the router default.
	maxRetries := r.config.MaxRetries
	if d.Network.MaxRetries != nil {
		maxRetries = *d.Network.MaxRetries
	}
	maxAttempts := maxRetries + 1

	var lastCause error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleepBackoff(ctx, attempt-1); err != nil {
				break
			}
		}
		attempts = attempt

		value, retryable, err := r.attempt(ctx, d, body, timeout)
		if err == nil {
			logging.Debug("Router", "Capability %s invoked in %v (attempt %d)", id, time.Since(start), attempt)
			notify("result", "")
			return &Result{Value: value, Attempts: attempts, Duration: time.Since(start)}, nil
		}
		lastCause = err

		if !retryable {
			var ie *InvokeError
			if invokeErr, ok := err.(*InvokeError); ok {
				ie = invokeErr
				ie.Attempts = attempts
			} else {
				ie = &InvokeError{Kind: KindUnavailable, Capability: id, Message: "invocation failed", Attempts: attempts, Cause: err}
			}
			notify("error", ie.Kind)
			return nil, ie
		}
		logging.Debug("Router", "Capability %s attempt %d/%d failed: %v", id, attempt, maxAttempts, err)
	}

	fail := &InvokeError{
		Kind:       KindUnavailable,
		Capability: id,
		Message:    "retry budget exhausted",
		Attempts:   attempts,
		Cause:      lastCause,
	}
	notify("error", KindUnavailable)
	return nil, fail
}

// attempt performs one resolve + call round trip. The bool reports
// whether the failure is retryable.
func (r *Router) attempt(ctx context.Context, d *manifest.Descriptor, body []byte, timeout time.Duration) (interface{}, bool, error) {
	// Re-resolve on every attempt so a replaced or rescaled backend is
	// picked up between retries.
	endpoint, err := r.resolver.Resolve(ctx, d.ID)
	if err != nil {
		return nil, true, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint.URL()+d.Network.InvokePath, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Connection-level failure: this endpoint is suspect, drop it
		// from the cache before the next attempt.
		r.resolver.Invalidate(d.ID)
		return nil, true, fmt.Errorf("calling %s: %w", endpoint.Addr(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("backend %s returned status %d", endpoint.Addr(), resp.StatusCode)
	case resp.StatusCode >= 400:
		// Caller-input fault: the arguments are wrong, not the
		// infrastructure. Retrying cannot help.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, &InvokeError{
			Kind:       KindValidation,
			Capability: d.ID,
			Message:    fmt.Sprintf("backend rejected the request with status %d: %s", resp.StatusCode, bytes.TrimSpace(detail)),
		}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, false, &InvokeError{Kind: KindUnavailable, Capability: d.ID, Message: "undecodable response body", Cause: err}
	}

	if wire.Error != nil {
		if wire.Result != nil {
			logging.Warn("Router", "Capability %s returned both result and error, keeping the error", d.ID)
		}
		// The capability executed; side effects may exist. Pass the
		// fault through without retrying.
		return nil, false, &InvokeError{Kind: KindCapability, Capability: d.ID, Message: wire.Error.Message, Fault: wire.Error}
	}
	if wire.Result == nil {
		return nil, false, &InvokeError{Kind: KindUnavailable, Capability: d.ID, Message: "response carries neither result nor error"}
	}

	var value interface{}
	if err := json.Unmarshal(wire.Result, &value); err != nil {
		return nil, false, &InvokeError{Kind: KindUnavailable, Capability: d.ID, Message: "undecodable result payload", Cause: err}
	}
	return value, false, nil
}

// sleepBackoff waits for the exponential backoff delay before retry
// number `retry`, honoring context cancellation.
func (r *Router) sleepBackoff(ctx context.Context, retry int) error {
	// Exponential backoff: initial * 2^(retry-1)
	backoff := r.config.InitialBackoff * time.Duration(1<<uint(retry-1))
	if backoff > r.config.MaxBackoff {
		backoff = r.config.MaxBackoff
	}
	if r.config.JitterEnabled && backoff > 0 {
		// Spread synchronized retries across clients.
		backoff += time.Duration(rand.Int63n(int64(backoff)/4 + 1))
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withCallID returns the correlation map with a generated call id
// added when the caller did not supply one. The input map is never
// mutated.
func withCallID(correlation map[string]string) map[string]string {
	out := make(map[string]string, len(correlation)+1)
	for k, v := range correlation {
		out[k] = v
	}
	if _, ok := out[correlationCallID]; !ok {
		out[correlationCallID] = uuid.NewString()
	}
	return out
}
