package reconciler

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"capstan/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// ManifestChange signals that the manifest file changed on disk.
type ManifestChange struct {
	Source    ChangeSource
	Timestamp time.Time
}

// ManifestDetector watches the capability manifest for changes using
// fsnotify. It watches the containing directory rather than the file
// itself so atomic editor saves (write to temp, rename over) are still
// observed, and debounces bursts of write events into one change.
type ManifestDetector struct {
	mu sync.Mutex

	// path is the manifest file being watched
	path string

	// debounceInterval is how long to wait for additional writes
	debounceInterval time.Duration

	watcher *fsnotify.Watcher
	pending *time.Timer
	stopCh  chan struct{}
	running bool
}

// NewManifestDetector creates a detector for the manifest at path.
func NewManifestDetector(path string, debounceInterval time.Duration) *ManifestDetector {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &ManifestDetector{
		path:             path,
		debounceInterval: debounceInterval,
		stopCh:           make(chan struct{}),
	}
}

// Start begins watching for manifest changes.
func (d *ManifestDetector) Start(ctx context.Context, changes chan<- ManifestChange) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		watcher.Close()
		d.mu.Unlock()
		return err
	}

	d.watcher = watcher
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go d.processEvents(ctx, changes)

	logging.Info("ManifestDetector", "Watching %s for manifest changes", d.path)
	return nil
}

// Stop gracefully stops the detector.
func (d *ManifestDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	return d.watcher.Close()
}

func (d *ManifestDetector) processEvents(ctx context.Context, changes chan<- ManifestChange) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-d.stopCh:
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleFsEvent(ctx, event, changes)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ManifestDetector", err, "Filesystem watcher error")
		}
	}
}

func (d *ManifestDetector) handleFsEvent(ctx context.Context, event fsnotify.Event, changes chan<- ManifestChange) {
	if filepath.Base(event.Name) != filepath.Base(d.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	// Collapse a burst of events into one change.
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	if d.pending != nil {
		d.pending.Reset(d.debounceInterval)
		return
	}
	d.pending = time.AfterFunc(d.debounceInterval, func() {
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()

		change := ManifestChange{Source: SourceManifest, Timestamp: time.Now()}
		select {
		case changes <- change:
		case <-ctx.Done():
		case <-d.stopCh:
		}
	})
}
