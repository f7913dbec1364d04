// Package daemon provides the background process that keeps workspaces synced.
//
// The daemon:
// 1. Watches the workspace database directory for local writes
// 2. Debounces rapid changes and triggers a sync for the affected workspace
// 3. Periodically syncs every workspace on a fixed interval
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/store"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
	"github.com/FirstDataUnion/vaultsync/internal/workspace"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often every workspace is synced regardless of
	// local activity.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a local write before
	// triggering a sync. This batches rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and workspace synchronization.
type Daemon struct {
	engine   *syncpkg.Service
	registry *workspace.Registry
	dataDir  string
	config   *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // workspace ID -> timestamp
	changeQueueMu sync.Mutex

	storesMu sync.Mutex
	stores   map[string]*store.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// Use Start() to begin watching and syncing.
func New(engine *syncpkg.Service, registry *workspace.Registry, dataDir string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:      engine,
		registry:    registry,
		dataDir:     dataDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		stores:      make(map[string]*store.Store),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an initial sync of every workspace
// 2. Start watching the workspace database directory
// 3. Periodically sync every workspace
// 4. Process local changes with debouncing
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	dbDir := filepath.Join(d.dataDir, "workspaces")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	// Initial sync so a freshly started daemon converges immediately.
	d.syncAll(syncpkg.TriggerInterval)

	if err := d.watcher.Add(dbDir); err != nil {
		return fmt.Errorf("failed to watch workspace directory: %w", err)
	}

	d.config.Logger.Printf("Watching: %s", dbDir)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.intervalSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.storesMu.Lock()
	for id, st := range d.stores {
		if err := st.Close(); err != nil {
			d.config.Logger.Printf("Error closing store %s: %v", id, err)
		}
		delete(d.stores, id)
	}
	d.storesMu.Unlock()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// SyncNow triggers an immediate manual sync of a single workspace.
func (d *Daemon) SyncNow(ctx context.Context, workspaceID string) (*syncpkg.Report, error) {
	ws, err := d.registry.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	st, err := d.openStore(ws)
	if err != nil {
		return nil, err
	}
	return d.engine.SyncWorkspace(ctx, ws, st, syncpkg.TriggerManual)
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create and Write
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			id, ok := workspaceIDFromPath(event.Name)
			if !ok {
				continue
			}
			if _, err := d.registry.Get(id); err != nil {
				continue
			}

			d.queueChange(id)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a workspace to the change queue with debouncing.
func (d *Daemon) queueChange(workspaceID string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[workspaceID] = time.Now()
}

// processChangeQueue processes queued changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs workspaces whose last write is old enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for id, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, id)
		delete(d.changeQueue, id)
	}
	d.changeQueueMu.Unlock()

	for _, id := range ready {
		d.config.Logger.Printf("Local change detected: %s", id)
		d.syncOne(id, syncpkg.TriggerWatcher)
	}
}

// intervalSync periodically syncs every registered workspace.
func (d *Daemon) intervalSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.syncAll(syncpkg.TriggerInterval)
		}
	}
}

// syncAll syncs every registered workspace with the given trigger.
func (d *Daemon) syncAll(trigger syncpkg.Trigger) {
	for _, ws := range d.registry.List() {
		select {
		case <-d.ctx.Done():
			return
		default:
		}
		d.syncOne(ws.ID, trigger)
	}
}

// syncOne runs a single workspace sync and logs the outcome.
// A sync already in flight or in a backoff window is not an error.
func (d *Daemon) syncOne(workspaceID string, trigger syncpkg.Trigger) {
	ws, err := d.registry.Get(workspaceID)
	if err != nil {
		d.config.Logger.Printf("Skipping %s: %v", workspaceID, err)
		return
	}

	st, err := d.openStore(ws)
	if err != nil {
		d.config.Logger.Printf("Failed to open store for %s: %v", workspaceID, err)
		return
	}

	// The sync cycle writes into the watched database itself (journal,
	// mark-synced), so its own writes come back as watcher events. A
	// watcher sync exists to carry local mutations up; with nothing
	// pending it is skipped, which breaks the feedback loop.
	if trigger == syncpkg.TriggerWatcher {
		pending, err := d.countPending(st)
		if err != nil {
			d.config.Logger.Printf("Failed to count pending rows for %s: %v", workspaceID, err)
			return
		}
		if pending == 0 {
			return
		}
	}

	_, err = d.engine.SyncWorkspace(d.ctx, ws, st, trigger)
	switch {
	case err == nil:
	case errors.Is(err, syncpkg.ErrSyncInFlight):
		// Another trigger beat us to it.
	case errors.Is(err, syncpkg.ErrBackoff):
		// Still in the retry window after a failure.
	default:
		d.config.Logger.Printf("Sync failed for %s: %v", workspaceID, err)
	}
}

// countPending returns the number of rows awaiting upload, conversations
// plus api keys.
func (d *Daemon) countPending(st *store.Store) (int, error) {
	convs, err := st.CountPending(d.ctx)
	if err != nil {
		return 0, err
	}
	keys, err := st.CountPendingAPIKeys(d.ctx)
	if err != nil {
		return 0, err
	}
	return convs + keys, nil
}

// openStore returns the cached store for a workspace, opening it on first use.
func (d *Daemon) openStore(ws *schema.Workspace) (*store.Store, error) {
	d.storesMu.Lock()
	defer d.storesMu.Unlock()

	if st, ok := d.stores[ws.ID]; ok {
		return st, nil
	}

	st, err := store.Open(workspace.DBPath(d.dataDir, ws.ID))
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(d.ctx); err != nil {
		st.Close()
		return nil, err
	}

	d.stores[ws.ID] = st
	return st, nil
}

// workspaceIDFromPath maps a database file path to its workspace ID.
// SQLite sidecar files (-wal, -shm) count as writes to the same workspace.
func workspaceIDFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, "-wal")
	name = strings.TrimSuffix(name, "-shm")
	if !strings.HasSuffix(name, ".db") {
		return "", false
	}
	return strings.TrimSuffix(name, ".db"), true
}
