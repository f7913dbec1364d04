package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/store"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
	"github.com/FirstDataUnion/vaultsync/internal/workspace"
)

// fakeRemote is an in-memory snapshot store counting uploads.
type fakeRemote struct {
	mu       stdsync.Mutex
	meta     *schema.SnapshotMeta
	snapshot []byte
	uploads  int
}

func (f *fakeRemote) FetchMeta(ctx context.Context, ws *schema.Workspace) (*schema.SnapshotMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta == nil {
		return nil, syncpkg.ErrNotFound
	}
	meta := *f.meta
	return &meta, nil
}

func (f *fakeRemote) Download(ctx context.Context, ws *schema.Workspace, destDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return "", syncpkg.ErrNotFound
	}
	path := filepath.Join(destDir, ws.SnapshotName())
	if err := os.WriteFile(path, f.snapshot, 0600); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeRemote) Upload(ctx context.Context, ws *schema.Workspace, snapshotPath string, meta *schema.SnapshotMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return err
	}
	f.snapshot = data
	m := *meta
	f.meta = &m
	f.uploads++
	return nil
}

func TestWorkspaceIDFromPath(t *testing.T) {
	tests := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{"/data/workspaces/personal.db", "personal", true},
		{"/data/workspaces/personal.db-wal", "personal", true},
		{"/data/workspaces/personal.db-shm", "personal", true},
		{"/data/workspaces/team-research.db", "team-research", true},
		{"/data/workspaces/notes.txt", "", false},
		{"/data/workspaces/.db.tmp", "", false},
	}

	for _, tt := range tests {
		id, ok := workspaceIDFromPath(tt.path)
		if ok != tt.wantOK || id != tt.wantID {
			t.Errorf("workspaceIDFromPath(%q) = (%q, %v), want (%q, %v)",
				tt.path, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestNewValidation(t *testing.T) {
	reg, err := workspace.Load(t.TempDir())
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	engine := syncpkg.New(nil, nil, nil)

	if _, err := New(nil, reg, "/data", nil); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := New(engine, nil, "/data", nil); err == nil {
		t.Error("expected error for nil registry")
	}
	if _, err := New(engine, reg, "", nil); err == nil {
		t.Error("expected error for empty data dir")
	}

	d, err := New(engine, reg, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.config.SyncInterval != DefaultConfig().SyncInterval {
		t.Error("nil config should take defaults")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

// One external write must yield one watcher sync: the cycle's own journal
// and mark-synced writes raise watcher events too, and without the pending
// check every sync would queue the next one forever.
func TestWatcherSyncSkipsWhenNothingPending(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	reg, err := workspace.Load(dataDir)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	if err := reg.Add(&schema.Workspace{ID: "w1", Name: "W1", Kind: schema.KindPersonal}); err != nil {
		t.Fatalf("failed to register workspace: %v", err)
	}

	remote := &fakeRemote{}
	engCfg := syncpkg.DefaultConfig()
	engCfg.TempDir = t.TempDir()
	engCfg.Logger = log.New(io.Discard, "", 0)
	engine := syncpkg.New(remote, engCfg, nil)

	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	d, err := New(engine, reg, dataDir, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	// An external write leaves a pending row.
	ext, err := store.Open(workspace.DBPath(dataDir, "w1"))
	if err != nil {
		t.Fatalf("failed to open workspace store: %v", err)
	}
	if err := ext.InitSchema(ctx); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	c := &schema.Conversation{WorkspaceID: "w1", Title: "External edit"}
	c.SetDefaults()
	if err := ext.UpsertConversation(ctx, c); err != nil {
		t.Fatalf("failed to write conversation: %v", err)
	}
	if err := ext.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	d.syncOne("w1", syncpkg.TriggerWatcher)
	if remote.uploads != 1 {
		t.Fatalf("uploads = %d, want 1 after the external write", remote.uploads)
	}

	// The sync left nothing pending; the watcher events its bookkeeping
	// writes raised must not start another cycle.
	d.syncOne("w1", syncpkg.TriggerWatcher)
	if remote.uploads != 1 {
		t.Errorf("uploads = %d, want 1 (watcher sync must skip when nothing is pending)", remote.uploads)
	}

	// Interval syncs still run unconditionally: they also pull remote
	// changes down.
	d.syncOne("w1", syncpkg.TriggerInterval)
	if remote.uploads != 2 {
		t.Errorf("uploads = %d, want 2 after an interval sync", remote.uploads)
	}
}

func TestDebounceBatchesRapidChanges(t *testing.T) {
	reg, err := workspace.Load(t.TempDir())
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	cfg := DefaultConfig()
	cfg.DebounceInterval = 50 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)

	d, err := New(syncpkg.New(nil, nil, nil), reg, t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Stop()

	// Rapid writes collapse into a single queued change.
	for i := 0; i < 10; i++ {
		d.queueChange("personal")
	}

	d.changeQueueMu.Lock()
	queued := len(d.changeQueue)
	d.changeQueueMu.Unlock()
	if queued != 1 {
		t.Errorf("change queue holds %d entries, want 1", queued)
	}

	// Too recent to process yet.
	d.processPendingChanges()
	d.changeQueueMu.Lock()
	queued = len(d.changeQueue)
	d.changeQueueMu.Unlock()
	if queued != 1 {
		t.Errorf("change processed before the debounce interval elapsed")
	}

	// Old enough now; the queue drains. The workspace isn't registered, so
	// the sync itself is skipped.
	time.Sleep(2 * cfg.DebounceInterval)
	d.processPendingChanges()
	d.changeQueueMu.Lock()
	queued = len(d.changeQueue)
	d.changeQueueMu.Unlock()
	if queued != 0 {
		t.Errorf("change queue still holds %d entries after debounce", queued)
	}
}
