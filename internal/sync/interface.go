// Package sync implements bidirectional reconciliation between a workspace
// database and its remote snapshot pair.
package sync

import (
	"context"
	"errors"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
)

// Sentinel errors surfaced by the engine and its remotes.
var (
	// ErrNotFound indicates the remote holds no snapshot yet (first sync).
	ErrNotFound = errors.New("remote snapshot not found")

	// ErrAuthExpired indicates the remote rejected our credentials. The
	// cycle aborts and local pending rows are preserved.
	ErrAuthExpired = errors.New("remote authorization expired")

	// ErrSyncInFlight indicates a sync for the workspace is already
	// running. At most one download+merge+upload runs per workspace.
	ErrSyncInFlight = errors.New("sync already in flight for workspace")

	// ErrBackoff indicates an automatic sync was skipped because the
	// workspace is in its failure backoff window. Manual syncs ignore it.
	ErrBackoff = errors.New("workspace in failure backoff")

	// ErrIncompatibleSnapshot indicates the remote snapshot was written by
	// a newer format than this build understands.
	ErrIncompatibleSnapshot = errors.New("remote snapshot format is newer than supported")
)

// Remote is the snapshot storage backend. Production uses Google Drive
// (internal/drive); tests use an in-memory fake.
//
// A remote stores one blob pair per workspace: the binary database snapshot
// and a small JSON metadata file. Personal workspaces route to the hidden
// per-application storage area, shared workspaces to an explicit folder.
type Remote interface {
	// FetchMeta returns the remote metadata blob for the workspace.
	// Returns ErrNotFound if the workspace has never been uploaded.
	FetchMeta(ctx context.Context, ws *schema.Workspace) (*schema.SnapshotMeta, error)

	// Download writes the remote snapshot into destDir and returns the
	// local file path. Returns ErrNotFound if no snapshot exists.
	Download(ctx context.Context, ws *schema.Workspace, destDir string) (string, error)

	// Upload replaces the remote snapshot pair with the file at
	// snapshotPath and the given metadata. The pair must be replaced
	// together; a reader must never see a new snapshot with old metadata.
	Upload(ctx context.Context, ws *schema.Workspace, snapshotPath string, meta *schema.SnapshotMeta) error
}

// Trigger identifies what started a sync cycle.
type Trigger string

const (
	// TriggerManual is a user-initiated sync (CLI). Ignores backoff.
	TriggerManual Trigger = "manual"
	// TriggerInterval is the daemon's periodic timer.
	TriggerInterval Trigger = "interval"
	// TriggerWatcher is a debounced local-change sync from the daemon.
	TriggerWatcher Trigger = "watcher"
)

// Health describes a workspace's sync condition for UI backoff indicators.
type Health int

const (
	// Healthy means the last sync succeeded.
	Healthy Health = iota
	// Degraded means recent syncs failed but below the failing threshold.
	Degraded
	// Failing means consecutive failures reached the failing threshold.
	Failing
)

// String returns a human-readable representation of the health state.
func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Failing:
		return "failing"
	default:
		return "unknown"
	}
}

// MergeResult counts what a merge did to the local database.
type MergeResult struct {
	// Inserted is the number of remote conversations new to this device.
	Inserted int
	// Updated is the number of local rows replaced by newer remote copies.
	Updated int
	// Forked is the number of conflict copies created for rows edited on
	// two devices since their last sync.
	Forked int
}

// Report summarizes one completed sync cycle.
type Report struct {
	WorkspaceID string
	Trigger     Trigger
	Merge       MergeResult
	// Uploaded is the number of pending rows carried by the upload
	// (conversations plus api keys).
	Uploaded int
	// FirstSync is true when no remote snapshot existed yet.
	FirstSync bool
}

// Notifier receives sync lifecycle events. The dashboard implements this;
// a nil notifier disables eventing.
type Notifier interface {
	SyncStarted(ws *schema.Workspace, trigger Trigger)
	SyncFinished(ws *schema.Workspace, trigger Trigger, report *Report, err error, health Health)
}
