package reconciler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capstan/internal/events"
	"capstan/internal/manifest"
)

const testManifest = `
capabilities:
  - id: calc
    image: registry.example.com/calc:v1
    network:
      port: 8080
  - id: echo
    image: registry.example.com/echo:v1
    network:
      port: 9000
`

const updatedManifest = `
capabilities:
  - id: calc
    image: registry.example.com/calc:v2
    network:
      port: 8080
`

// recordingReconciler records every request and returns canned results
// per capability.
type recordingReconciler struct {
	mu       sync.Mutex
	requests []ReconcileRequest
	failures map[string]error
	failFor  map[string]int
}

func newRecordingReconciler() *recordingReconciler {
	return &recordingReconciler{
		failures: make(map[string]error),
		failFor:  make(map[string]int),
	}
}

func (r *recordingReconciler) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)

	if err, ok := r.failures[req.Capability]; ok {
		if remaining := r.failFor[req.Capability]; remaining != 0 {
			if remaining > 0 {
				r.failFor[req.Capability] = remaining - 1
			}
			return ReconcileResult{Requeue: true, Error: err}
		}
	}
	return ReconcileResult{}
}

// failAlways makes every attempt for the capability fail.
func (r *recordingReconciler) failAlways(capability string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[capability] = err
	r.failFor[capability] = -1
}

// failTimes makes the first n attempts for the capability fail.
func (r *recordingReconciler) failTimes(capability string, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[capability] = err
	r.failFor[capability] = n
}

func (r *recordingReconciler) attempts(capability string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, req := range r.requests {
		if req.Capability == capability {
			count++
		}
	}
	return count
}

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestManager(t *testing.T, manifestContent string, rec Reconciler) (*Manager, *manifest.Store, string) {
	t.Helper()
	path := writeManifest(t, t.TempDir(), manifestContent)

	set, err := manifest.LoadFile(path)
	require.NoError(t, err)
	store := manifest.NewStore(set)

	config := ManagerConfig{
		WorkerCount:      2,
		MaxRetries:       3,
		InitialBackoff:   5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		DebounceInterval: 10 * time.Millisecond,
		ReconcileTimeout: time.Second,
	}
	return NewManager(config, path, store, rec, events.NewBus()), store, path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func statusOf(m *Manager, capability string) (ReconcileStatus, bool) {
	for _, s := range m.Statuses() {
		if s.Capability == capability {
			return s, true
		}
	}
	return ReconcileStatus{}, false
}

func TestManagerTriggerAllReconcilesEveryCapability(t *testing.T) {
	rec := newRecordingReconciler()
	m, _, _ := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.TriggerAll(SourceManual)

	waitFor(t, 2*time.Second, func() bool {
		calc, ok1 := statusOf(m, "calc")
		echo, ok2 := statusOf(m, "echo")
		return ok1 && ok2 && calc.State == StateSynced && echo.State == StateSynced
	})

	calc, _ := statusOf(m, "calc")
	assert.NotNil(t, calc.LastReconcileTime)
	assert.Empty(t, calc.LastError)
}

func TestManagerRetriesWithBackoffThenSyncs(t *testing.T) {
	rec := newRecordingReconciler()
	rec.failTimes("calc", 2, errors.New("apiserver unavailable"))
	m, _, _ := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.Trigger("calc")

	waitFor(t, 2*time.Second, func() bool {
		s, ok := statusOf(m, "calc")
		return ok && s.State == StateSynced
	})

	assert.Equal(t, 3, rec.attempts("calc"))
}

func TestManagerMarksFailedAfterMaxRetries(t *testing.T) {
	rec := newRecordingReconciler()
	rec.failAlways("calc", errors.New("persistent failure"))
	m, _, _ := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	m.Trigger("calc")

	waitFor(t, 2*time.Second, func() bool {
		s, ok := statusOf(m, "calc")
		return ok && s.State == StateFailed
	})

	assert.Equal(t, 3, rec.attempts("calc"))
	s, _ := statusOf(m, "calc")
	assert.Contains(t, s.LastError, "persistent failure")
}

func TestManagerCalculateBackoff(t *testing.T) {
	m := NewManager(ManagerConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}, "", nil, nil, nil)

	assert.Equal(t, time.Second, m.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, m.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, m.calculateBackoff(3))
	assert.Equal(t, 8*time.Second, m.calculateBackoff(4))
	assert.Equal(t, 10*time.Second, m.calculateBackoff(5), "backoff is capped")
}

func TestManagerReloadManifestSwapsSetAndEnqueuesUnion(t *testing.T) {
	rec := newRecordingReconciler()
	m, store, path := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// New manifest drops echo and changes calc.
	require.NoError(t, os.WriteFile(path, []byte(updatedManifest), 0o644))
	m.ReloadManifest()

	current := store.Current()
	assert.Equal(t, []string{"calc"}, current.IDs())
	d, ok := current.Get("calc")
	require.True(t, ok)
	assert.Equal(t, "registry.example.com/calc:v2", d.Image)

	// Both the surviving and the removed capability get reconciled.
	waitFor(t, 2*time.Second, func() bool {
		return rec.attempts("calc") >= 1 && rec.attempts("echo") >= 1
	})
}

func TestManagerReloadManifestRejectionKeepsPreviousSet(t *testing.T) {
	rec := newRecordingReconciler()
	m, store, path := newTestManager(t, testManifest, rec)

	bus := m.bus
	eventCh, cancel := bus.Subscribe(8)
	defer cancel()

	require.NoError(t, os.WriteFile(path, []byte("capabilities: [{id: broken}]"), 0o644))
	m.ReloadManifest()

	assert.ElementsMatch(t, []string{"calc", "echo"}, store.Current().IDs())

	select {
	case ev := <-eventCh:
		assert.Equal(t, events.ReasonManifestRejected, ev.Reason)
		assert.Equal(t, events.EventTypeWarning, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a manifest rejection event")
	}
}

func TestManagerDetectsManifestFileChange(t *testing.T) {
	rec := newRecordingReconciler()
	m, store, path := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, os.WriteFile(path, []byte(updatedManifest), 0o644))

	waitFor(t, 3*time.Second, func() bool {
		ids := store.Current().IDs()
		return len(ids) == 1 && ids[0] == "calc"
	})

	waitFor(t, 2*time.Second, func() bool {
		return rec.attempts("echo") >= 1
	})
}

func TestManagerStopIsIdempotent(t *testing.T) {
	rec := newRecordingReconciler()
	m, _, _ := newTestManager(t, testManifest, rec)

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	m.Stop()
}
