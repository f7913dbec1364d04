package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/snapshot"
	"github.com/FirstDataUnion/vaultsync/internal/store"
)

// remoteRow wraps a conversation the way a loaded snapshot presents it:
// synced status with its own content hash.
func remoteRow(c *schema.Conversation) *store.ConversationRow {
	return &store.ConversationRow{
		Conversation: *c,
		Status:       schema.StatusSynced,
		SyncedHash:   c.ContentHash(),
	}
}

func remoteKey(k *schema.APIKey) *store.APIKeyRow {
	return &store.APIKeyRow{APIKey: *k, Status: schema.StatusSynced}
}

func testMeta(deviceName string) *schema.SnapshotMeta {
	return &schema.SnapshotMeta{
		FormatVersion: schema.SnapshotFormatVersion,
		WorkspaceID:   "team",
		DeviceID:      "other-device",
		DeviceName:    deviceName,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMergeSharedForkTagsEditor(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := sharedWS()

	// Local pending edit of a previously synced conversation.
	base := &schema.Conversation{WorkspaceID: "team", Title: "Roadmap"}
	base.SetDefaults()
	if err := st.PutRemoteConversation(ctx, base); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	local := base.Clone()
	local.Title = "Roadmap (our take)"
	local.Touch()
	if err := st.UpsertConversation(ctx, local); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	// The remote copy diverged too, edited on bob's device.
	remote := base.Clone()
	remote.Title = "Roadmap v2"
	remote.Touch()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(remote)}}
	result, err := svc.merge(ctx, ws, st, contents, testMeta("bob"))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if result.Forked != 1 {
		t.Fatalf("Forked = %d, want 1", result.Forked)
	}

	used, err := st.TitleInUse(ctx, "Roadmap v2 (bob)")
	if err != nil {
		t.Fatalf("TitleInUse failed: %v", err)
	}
	if !used {
		t.Error("shared fork should be tagged with the remote editor's name")
	}
}

func TestMergeSharedForkNumbersRepeatedTags(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := sharedWS()

	// The tagged name is already taken by an earlier fork.
	existing := &schema.Conversation{WorkspaceID: "team", Title: "Roadmap v2 (bob)"}
	existing.SetDefaults()
	if err := st.UpsertConversation(ctx, existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	base := &schema.Conversation{WorkspaceID: "team", Title: "Roadmap"}
	base.SetDefaults()
	if err := st.PutRemoteConversation(ctx, base); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	local := base.Clone()
	local.Title = "Roadmap edited"
	local.Touch()
	if err := st.UpsertConversation(ctx, local); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	remote := base.Clone()
	remote.Title = "Roadmap v2"
	remote.Touch()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(remote)}}
	if _, err := svc.merge(ctx, ws, st, contents, testMeta("bob")); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	used, err := st.TitleInUse(ctx, "Roadmap v2 (bob 2)")
	if err != nil {
		t.Fatalf("TitleInUse failed: %v", err)
	}
	if !used {
		t.Error("expected numbered fallback when the tagged name is taken")
	}
}

func TestMergePersonalForkNumbersCopies(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := personalWS()

	taken := &schema.Conversation{WorkspaceID: "personal", Title: "Notes (2)"}
	taken.SetDefaults()
	if err := st.UpsertConversation(ctx, taken); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	base := &schema.Conversation{WorkspaceID: "personal", Title: "Notes"}
	base.SetDefaults()
	if err := st.PutRemoteConversation(ctx, base); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	local := base.Clone()
	local.Title = "Notes edited"
	local.Touch()
	if err := st.UpsertConversation(ctx, local); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	remote := base.Clone()
	remote.Title = "Notes"
	remote.Archived = true
	remote.Touch()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(remote)}}
	if _, err := svc.merge(ctx, ws, st, contents, testMeta("")); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// "(2)" was taken, so the fork takes "(3)".
	used, err := st.TitleInUse(ctx, "Notes (3)")
	if err != nil {
		t.Fatalf("TitleInUse failed: %v", err)
	}
	if !used {
		t.Error("personal fork should take the first free numbered copy")
	}
}

// A conversation whose title already sits at the length limit must still
// fork: the conflict suffix displaces the tail of the title rather than
// producing an invalid row that aborts every merge.
func TestMergeForkClampsMaximumLengthTitles(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := personalWS()

	long := strings.Repeat("x", schema.MaxTitleLen)
	base := &schema.Conversation{WorkspaceID: "personal", Title: long}
	base.SetDefaults()
	if err := st.PutRemoteConversation(ctx, base); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	local := base.Clone()
	local.Archived = true
	local.Touch()
	if err := st.UpsertConversation(ctx, local); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	remote := base.Clone()
	remote.Tags = []string{"remote-edit"}
	remote.Touch()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(remote)}}
	result, err := svc.merge(ctx, ws, st, contents, testMeta(""))
	if err != nil {
		t.Fatalf("merge failed on a maximum-length title: %v", err)
	}
	if result.Forked != 1 {
		t.Fatalf("Forked = %d, want 1", result.Forked)
	}

	want := long[:schema.MaxTitleLen-len(" (2)")] + " (2)"
	used, err := st.TitleInUse(ctx, want)
	if err != nil {
		t.Fatalf("TitleInUse failed: %v", err)
	}
	if !used {
		t.Error("fork title should keep the conflict suffix within the length limit")
	}
}

func TestForkCandidateTrimsOnRuneBoundary(t *testing.T) {
	// Short titles pass through untouched.
	if got := forkCandidate("Notes", " (2)"); got != "Notes (2)" {
		t.Errorf("forkCandidate = %q, want %q", got, "Notes (2)")
	}

	// Multi-byte titles at the limit are cut on a rune boundary.
	long := strings.Repeat("ü", schema.MaxTitleLen/2) // 2 bytes per rune
	got := forkCandidate(long, " (bob)")
	if len(got) > schema.MaxTitleLen {
		t.Fatalf("candidate is %d bytes, limit is %d", len(got), schema.MaxTitleLen)
	}
	if !strings.HasSuffix(got, " (bob)") {
		t.Errorf("candidate %q lost its conflict suffix", got)
	}
	trimmed := strings.TrimSuffix(got, " (bob)")
	for _, r := range trimmed {
		if r != 'ü' {
			t.Fatalf("trim split a rune: found %q", r)
		}
	}
}

func TestMergeRemoteTombstoneNeverForks(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := personalWS()

	base := &schema.Conversation{WorkspaceID: "personal", Title: "Keep me"}
	base.SetDefaults()
	if err := st.PutRemoteConversation(ctx, base); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	local := base.Clone()
	local.Title = "Keep me edited"
	local.Touch()
	if err := st.UpsertConversation(ctx, local); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	// Another device deleted the conversation.
	remote := base.Clone()
	remote.Deleted = true
	remote.Touch()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(remote)}}
	result, err := svc.merge(ctx, ws, st, contents, testMeta(""))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if result.Forked != 0 {
		t.Errorf("Forked = %d, want 0 (tombstones are nothing to fork)", result.Forked)
	}

	// The pending local edit survives the remote deletion.
	row, err := st.GetConversation(ctx, base.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if row.Deleted {
		t.Error("remote deletion must not erase a pending local edit")
	}
	if !row.Pending() {
		t.Error("surviving edit should stay pending so it re-uploads")
	}
}

func TestMergeUnknownTombstoneNotCounted(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()

	dead := &schema.Conversation{WorkspaceID: "personal", Title: "Long gone", Deleted: true}
	dead.SetDefaults()

	contents := &snapshot.Contents{Conversations: []*store.ConversationRow{remoteRow(dead)}}
	result, err := svc.merge(ctx, personalWS(), st, contents, testMeta(""))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if result.Inserted != 0 {
		t.Errorf("Inserted = %d, want 0 (a new tombstone is invisible)", result.Inserted)
	}

	// The tombstone is recorded anyway so the row can't resurrect later.
	row, err := st.GetConversation(ctx, dead.ID)
	if err != nil {
		t.Fatalf("tombstone not recorded: %v", err)
	}
	if !row.Deleted {
		t.Error("expected recorded tombstone")
	}
}

func TestMergeAPIKeys(t *testing.T) {
	svc := newTestService(t, &fakeRemote{})
	st := setupTestStore(t)
	ctx := context.Background()
	ws := personalWS()

	// Local clean key, older than the remote copy.
	older := &schema.APIKey{Provider: "openai", Key: "old"}
	older.SetDefaults()
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	if err := st.PutRemoteAPIKey(ctx, older); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Local pending key that must win regardless of timestamps.
	mine := &schema.APIKey{Provider: "anthropic", Key: "mine"}
	mine.SetDefaults()
	mine.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := st.PutAPIKey(ctx, mine); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	newer := &schema.APIKey{Provider: "openai", Key: "new"}
	newer.SetDefaults()
	theirs := &schema.APIKey{Provider: "anthropic", Key: "theirs"}
	theirs.SetDefaults()
	fresh := &schema.APIKey{Provider: "gemini", Key: "fresh"}
	fresh.SetDefaults()

	contents := &snapshot.Contents{
		APIKeys: []*store.APIKeyRow{remoteKey(newer), remoteKey(theirs), remoteKey(fresh)},
	}
	if _, err := svc.merge(ctx, ws, st, contents, testMeta("")); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	// Remote newer beats local clean.
	got, err := st.GetAPIKey(ctx, "openai")
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if got.Key != "new" {
		t.Errorf("openai key = %q, want remote %q", got.Key, "new")
	}

	// Pending local beats any remote copy.
	got, err = st.GetAPIKey(ctx, "anthropic")
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if got.Key != "mine" {
		t.Errorf("anthropic key = %q, want pending local %q", got.Key, "mine")
	}

	// Unknown providers are inserted.
	got, err = st.GetAPIKey(ctx, "gemini")
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if got.Key != "fresh" || got.Pending() {
		t.Errorf("gemini key = %q pending=%v, want synced %q", got.Key, got.Pending(), "fresh")
	}
}
