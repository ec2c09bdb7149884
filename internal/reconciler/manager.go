package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"capstan/internal/events"
	"capstan/internal/manifest"
	"capstan/pkg/logging"
)

// Manager coordinates capability reconciliation.
//
// It manages:
//   - The manifest change detector
//   - The work queue and worker pool
//   - Retry logic with exponential backoff
//   - Per-capability reconciliation status
//
// A manifest change recompiles the manifest; a successful compile
// swaps the descriptor set and enqueues one request per affected
// capability, a failed one keeps the previous set in effect.
type Manager struct {
	mu sync.RWMutex

	config       ManagerConfig
	manifestPath string

	store      *manifest.Store
	reconciler Reconciler
	detector   *ManifestDetector
	queue      *delayedQueue
	bus        *events.Bus

	// statusTracker tracks reconciliation status per capability
	statusTracker map[string]*ReconcileStatus

	// changeChan receives manifest change notifications
	changeChan chan ManifestChange

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewManager creates a reconciliation manager.
func NewManager(config ManagerConfig, manifestPath string, store *manifest.Store, reconciler Reconciler, bus *events.Bus) *Manager {
	config = config.withDefaults()
	return &Manager{
		config:        config,
		manifestPath:  manifestPath,
		store:         store,
		reconciler:    reconciler,
		detector:      NewManifestDetector(manifestPath, config.DebounceInterval),
		queue:         newDelayedQueue(),
		bus:           bus,
		statusTracker: make(map[string]*ReconcileStatus),
		changeChan:    make(chan ManifestChange, 16),
	}
}

// Start begins watching the manifest and processing reconcile work.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	if err := m.detector.Start(m.ctx, m.changeChan); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("starting manifest detector: %w", err)
	}

	m.wg.Add(1)
	go m.processChanges()

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	logging.Info("ReconcileManager", "Started with %d workers", m.config.WorkerCount)
	return nil
}

// Stop shuts the manager down and waits for in-flight work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.detector.Stop()
	m.cancelFunc()
	m.queue.Shutdown()
	m.wg.Wait()
	logging.Info("ReconcileManager", "Stopped")
}

// TriggerAll enqueues a reconcile request for every capability in the
// current descriptor set.
func (m *Manager) TriggerAll(source ChangeSource) {
	for _, id := range m.store.Current().IDs() {
		m.enqueue(id)
	}
	logging.Debug("ReconcileManager", "Triggered full reconcile (%s)", source)
}

// Trigger enqueues a reconcile request for one capability.
func (m *Manager) Trigger(id string) {
	m.enqueue(id)
}

// Statuses returns the tracked status of every known capability,
// ordered by capability id.
func (m *Manager) Statuses() []ReconcileStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ReconcileStatus, 0, len(m.statusTracker))
	for _, status := range m.statusTracker {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}

// processChanges reloads the manifest whenever the detector reports a
// change.
func (m *Manager) processChanges() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case change, ok := <-m.changeChan:
			if !ok {
				return
			}
			logging.Info("ReconcileManager", "Manifest change detected (%s)", change.Source)
			m.ReloadManifest()
		}
	}
}

// ReloadManifest recompiles the manifest file. On success the new
// descriptor set is swapped in atomically and every added, changed, or
// removed capability is enqueued; on failure the previous set stays in
// effect.
func (m *Manager) ReloadManifest() {
	next, err := manifest.LoadFile(m.manifestPath)
	if err != nil {
		logging.Error("ReconcileManager", err, "Manifest reload rejected, keeping previous descriptor set")
		if m.bus != nil {
			m.bus.Publish(events.ReasonManifestRejected, events.EventData{Error: err.Error()})
		}
		return
	}

	previous := m.store.Swap(next)
	if m.bus != nil {
		m.bus.Publish(events.ReasonManifestLoaded, events.EventData{})
	}

	// Enqueue the union of old and new ids so removed capabilities are
	// torn down and new or changed ones converge.
	for _, id := range next.IDs() {
		m.enqueue(id)
	}
	for _, id := range previous.IDs() {
		if _, stillDeclared := next.Get(id); !stillDeclared {
			m.enqueue(id)
		}
	}
}

func (m *Manager) enqueue(id string) {
	m.updateStatus(id, StatePending, "")
	m.queue.Add(ReconcileRequest{Capability: id, Attempt: 1})
}

// worker processes reconciliation requests from the queue.
func (m *Manager) worker(id int) {
	defer m.wg.Done()

	logging.Debug("ReconcileManager", "Worker %d started", id)

	for {
		req, ok := m.queue.Get(m.ctx)
		if !ok {
			logging.Debug("ReconcileManager", "Worker %d shutting down", id)
			return
		}

		m.processRequest(req)
		m.queue.Done(req)
	}
}

// processRequest handles a single reconciliation request.
func (m *Manager) processRequest(req ReconcileRequest) {
	m.updateStatus(req.Capability, StateReconciling, "")

	logging.Debug("ReconcileManager", "Reconciling %s (attempt %d)", req.Capability, req.Attempt)

	// Bound each attempt so a hung reconciler cannot block a worker.
	ctx, cancel := context.WithTimeout(m.ctx, m.config.ReconcileTimeout)
	defer cancel()

	result := m.reconciler.Reconcile(ctx, req)

	if ctx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Errorf("reconciliation timed out after %v", m.config.ReconcileTimeout)
		result.Requeue = true
	}

	switch {
	case result.Error != nil:
		m.handleReconcileError(req, result)
	case result.RequeueAfter > 0:
		m.queue.AddAfter(ReconcileRequest{Capability: req.Capability, Attempt: 1}, result.RequeueAfter)
		m.markSynced(req.Capability)
	default:
		m.markSynced(req.Capability)
	}
}

// handleReconcileError requeues a failed request with backoff until
// the retry budget is spent.
func (m *Manager) handleReconcileError(req ReconcileRequest, result ReconcileResult) {
	logging.Warn("ReconcileManager", "Reconciliation failed for %s: %v", req.Capability, result.Error)

	if req.Attempt >= m.config.MaxRetries {
		logging.Error("ReconcileManager", result.Error, "Max retries exceeded for %s", req.Capability)
		m.updateStatus(req.Capability, StateFailed, result.Error.Error())
		return
	}

	m.updateStatus(req.Capability, StateError, result.Error.Error())

	backoff := m.calculateBackoff(req.Attempt)
	req.Attempt++
	req.LastError = result.Error
	m.queue.AddAfter(req, backoff)

	logging.Debug("ReconcileManager", "Requeuing %s after %v (attempt %d)", req.Capability, backoff, req.Attempt)
}

// calculateBackoff computes exponential backoff.
func (m *Manager) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: initial * 2^(attempt-1)
	backoff := m.config.InitialBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > m.config.MaxBackoff {
		backoff = m.config.MaxBackoff
	}
	return backoff
}

func (m *Manager) markSynced(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.statusOf(id)
	now := time.Now()
	status.State = StateSynced
	status.LastReconcileTime = &now
	status.LastError = ""
	status.RetryCount = 0
}

func (m *Manager) updateStatus(id string, state ReconcileState, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.statusOf(id)
	status.State = state
	status.LastError = errMsg
	if state == StateError {
		status.RetryCount++
	}
}

// statusOf returns the tracked status entry, creating it on first use.
// Callers must hold m.mu.
func (m *Manager) statusOf(id string) *ReconcileStatus {
	status, ok := m.statusTracker[id]
	if !ok {
		status = &ReconcileStatus{Capability: id}
		m.statusTracker[id] = status
	}
	return status
}
