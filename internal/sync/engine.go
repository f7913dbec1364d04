package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/snapshot"
	"github.com/FirstDataUnion/vaultsync/internal/store"
)

// Config holds configuration for the engine.
type Config struct {
	// TempDir is where downloaded and outgoing snapshots are staged.
	TempDir string

	// DeviceID identifies this device in uploaded snapshot metadata.
	DeviceID string

	// DeviceName is the human-readable device label for metadata.
	DeviceName string

	// Username is the local display name, used for fork tags in shared
	// workspaces when the remote editor is unknown.
	Username string

	// FailingThreshold is the consecutive-failure count at which health
	// drops from degraded to failing.
	FailingThreshold int

	// BackoffBase is the first backoff window after a failure. Each
	// further consecutive failure doubles it, capped at BackoffMax.
	BackoffBase time.Duration

	// BackoffMax caps the backoff window.
	BackoffMax time.Duration

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TempDir:          os.TempDir(),
		FailingThreshold: 3,
		BackoffBase:      30 * time.Second,
		BackoffMax:       30 * time.Minute,
		Logger:           log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Service runs sync cycles against a Remote, tracking per-workspace
// in-flight state, failure counts and backoff windows.
type Service struct {
	remote   Remote
	config   *Config
	notifier Notifier

	mu     stdsync.Mutex
	states map[string]*wsState

	// now is swappable for backoff tests.
	now func() time.Time
}

// wsState is the per-workspace mutual-exclusion flag plus failure tracking.
type wsState struct {
	inFlight    bool
	failures    int
	lastError   string
	lastAttempt time.Time
	lastSuccess time.Time
}

// Status is a point-in-time view of a workspace's sync condition.
type Status struct {
	WorkspaceID         string
	Health              Health
	ConsecutiveFailures int
	LastError           string
	LastAttempt         time.Time
	LastSuccess         time.Time
	// NextAuto is the earliest time an automatic sync will run again.
	// Zero when no backoff is active.
	NextAuto time.Time
}

// New creates a Service. If config is nil, DefaultConfig() is used.
// If notifier is nil, lifecycle events are dropped.
func New(remote Remote, config *Config, notifier Notifier) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if config.FailingThreshold <= 0 {
		config.FailingThreshold = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 30 * time.Second
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = 30 * time.Minute
	}

	return &Service{
		remote:   remote,
		config:   config,
		notifier: notifier,
		states:   make(map[string]*wsState),
		now:      time.Now,
	}
}

// SyncWorkspace runs one full cycle for the workspace:
//
//	download remote snapshot -> merge into local store -> build merged
//	snapshot -> upload -> mark pending rows synced
//
// At most one cycle runs per workspace; a concurrent call returns
// ErrSyncInFlight immediately. Automatic triggers (interval, watcher) are
// refused with ErrBackoff while the workspace is inside its failure backoff
// window; manual triggers always run.
//
// Any failure aborts the cycle with pending rows untouched.
func (s *Service) SyncWorkspace(ctx context.Context, ws *schema.Workspace, st *store.Store, trigger Trigger) (*Report, error) {
	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}

	if err := s.acquire(ws.ID, trigger); err != nil {
		return nil, err
	}
	defer s.release(ws.ID)

	if s.notifier != nil {
		s.notifier.SyncStarted(ws, trigger)
	}

	started := s.now()
	report, err := s.runCycle(ctx, ws, st, trigger)
	finished := s.now()

	s.recordOutcome(ws.ID, finished, err)

	entry := &store.JournalEntry{
		WorkspaceID: ws.ID,
		Reason:      string(trigger),
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if report != nil {
		entry.Inserted = report.Merge.Inserted
		entry.Updated = report.Merge.Updated
		entry.Forked = report.Merge.Forked
		entry.Uploaded = report.Uploaded
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := st.AppendJournal(ctx, entry); jerr != nil {
		s.config.Logger.Printf("Warning: failed to record journal entry for %s: %v", ws.ID, jerr)
	}

	if s.notifier != nil {
		s.notifier.SyncFinished(ws, trigger, report, err, s.Status(ws.ID).Health)
	}

	if err != nil {
		s.config.Logger.Printf("Sync failed for workspace %s (%s): %v", ws.ID, trigger, err)
		return nil, err
	}

	s.config.Logger.Printf("Sync complete for workspace %s (%s): inserted=%d updated=%d forked=%d uploaded=%d",
		ws.ID, trigger, report.Merge.Inserted, report.Merge.Updated, report.Merge.Forked, report.Uploaded)
	return report, nil
}

// runCycle executes the download/merge/upload protocol.
func (s *Service) runCycle(ctx context.Context, ws *schema.Workspace, st *store.Store, trigger Trigger) (*Report, error) {
	report := &Report{WorkspaceID: ws.ID, Trigger: trigger}

	tmpDir := filepath.Join(s.config.TempDir, "vaultsync", ws.ID)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	// Phase 1: download.
	remoteMeta, err := s.remote.FetchMeta(ctx, ws)
	switch {
	case errors.Is(err, ErrNotFound):
		report.FirstSync = true
	case err != nil:
		return nil, fmt.Errorf("failed to fetch remote metadata: %w", err)
	default:
		if remoteMeta.FormatVersion > schema.SnapshotFormatVersion {
			return nil, fmt.Errorf("%w: remote=%d supported=%d",
				ErrIncompatibleSnapshot, remoteMeta.FormatVersion, schema.SnapshotFormatVersion)
		}
	}

	// Phase 2: merge.
	if !report.FirstSync {
		remotePath, err := s.remote.Download(ctx, ws, tmpDir)
		if errors.Is(err, ErrNotFound) {
			// Metadata without a snapshot: treat as first sync.
			report.FirstSync = true
		} else if err != nil {
			return nil, fmt.Errorf("failed to download remote snapshot: %w", err)
		} else {
			defer os.Remove(remotePath)

			contents, err := snapshot.Load(ctx, remotePath, ws)
			if err != nil {
				return nil, fmt.Errorf("failed to load remote snapshot: %w", err)
			}

			result, err := s.merge(ctx, ws, st, contents, remoteMeta)
			if err != nil {
				return nil, fmt.Errorf("failed to merge remote snapshot: %w", err)
			}
			report.Merge = result
		}
	}

	// Phase 3: upload. Capture the pending set first; only these exact row
	// versions are marked synced afterwards.
	pendingConvs, err := st.ListPendingConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending conversations: %w", err)
	}
	pendingKeys, err := st.ListPendingAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending api keys: %w", err)
	}

	outPath, err := snapshot.Build(ctx, st, ws, tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	defer os.Remove(outPath)

	meta, err := snapshot.BuildMeta(ctx, st, ws, s.config.DeviceID, s.config.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot metadata: %w", err)
	}

	if err := s.remote.Upload(ctx, ws, outPath, meta); err != nil {
		return nil, fmt.Errorf("failed to upload snapshot: %w", err)
	}

	// Phase 4: only now may the pending rows be marked synced.
	if err := st.MarkConversationsSynced(ctx, pendingConvs); err != nil {
		return nil, fmt.Errorf("failed to mark conversations synced: %w", err)
	}
	if ws.IsShared() {
		report.Uploaded = len(pendingConvs)
		return report, nil
	}
	if err := st.MarkAPIKeysSynced(ctx, pendingKeys); err != nil {
		return nil, fmt.Errorf("failed to mark api keys synced: %w", err)
	}
	report.Uploaded = len(pendingConvs) + len(pendingKeys)
	return report, nil
}

// acquire takes the workspace's in-flight flag, enforcing backoff for
// automatic triggers.
func (s *Service) acquire(wsID string, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(wsID)
	if state.inFlight {
		return ErrSyncInFlight
	}

	if trigger != TriggerManual && state.failures > 0 {
		if next := s.nextAuto(state); s.now().Before(next) {
			return ErrBackoff
		}
	}

	state.inFlight = true
	return nil
}

func (s *Service) release(wsID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(wsID).inFlight = false
}

// recordOutcome updates failure tracking after a cycle.
func (s *Service) recordOutcome(wsID string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(wsID)
	state.lastAttempt = at
	if err != nil {
		state.failures++
		state.lastError = err.Error()
		return
	}
	state.failures = 0
	state.lastError = ""
	state.lastSuccess = at
}

// Status returns the workspace's current sync condition.
func (s *Service) Status(wsID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(wsID)
	status := Status{
		WorkspaceID:         wsID,
		ConsecutiveFailures: state.failures,
		LastError:           state.lastError,
		LastAttempt:         state.lastAttempt,
		LastSuccess:         state.lastSuccess,
	}

	switch {
	case state.failures == 0:
		status.Health = Healthy
	case state.failures < s.config.FailingThreshold:
		status.Health = Degraded
	default:
		status.Health = Failing
	}

	if state.failures > 0 {
		status.NextAuto = s.nextAuto(state)
	}

	return status
}

// nextAuto computes when automatic syncs may resume. Caller holds s.mu.
func (s *Service) nextAuto(state *wsState) time.Time {
	backoff := s.config.BackoffBase
	for i := 1; i < state.failures; i++ {
		backoff *= 2
		if backoff >= s.config.BackoffMax {
			backoff = s.config.BackoffMax
			break
		}
	}
	return state.lastAttempt.Add(backoff)
}

// state returns the tracked state for a workspace. Caller holds s.mu.
func (s *Service) state(wsID string) *wsState {
	st, ok := s.states[wsID]
	if !ok {
		st = &wsState{}
		s.states[wsID] = st
	}
	return st
}
