package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/snapshot"
	"github.com/FirstDataUnion/vaultsync/internal/store"
)

// merge reconciles a downloaded snapshot into the local store.
//
// The merge is monotonic: a locally pending row is never overwritten or
// dropped. Per remote conversation:
//
//   - unknown locally            -> insert as synced
//   - local clean, remote moved  -> update local to the remote copy
//   - local pending, remote same -> keep local (nothing changed remotely)
//   - local pending, remote moved-> FORK: insert the remote copy as a new
//     conversation under a conflict name; the local row stays pending
//
// "Remote moved" means the remote content hash differs from the hash the
// local row carried at its last successful sync.
func (s *Service) merge(ctx context.Context, ws *schema.Workspace, st *store.Store, contents *snapshot.Contents, remoteMeta *schema.SnapshotMeta) (MergeResult, error) {
	var result MergeResult

	for _, remote := range contents.Conversations {
		local, err := st.GetConversation(ctx, remote.ID)
		if errors.Is(err, store.ErrNotFound) {
			if err := st.PutRemoteConversation(ctx, &remote.Conversation); err != nil {
				return result, err
			}
			// Tombstones new to this device are recorded but not counted:
			// nothing visible appeared.
			if !remote.Deleted {
				result.Inserted++
			}
			continue
		}
		if err != nil {
			return result, err
		}

		remoteHash := remote.Conversation.ContentHash()
		localHash := local.Conversation.ContentHash()
		if remoteHash == localHash {
			continue
		}

		remoteMoved := local.SyncedHash == "" || remoteHash != local.SyncedHash

		if !local.Pending() {
			if remoteMoved {
				if err := st.PutRemoteConversation(ctx, &remote.Conversation); err != nil {
					return result, err
				}
				result.Updated++
			}
			continue
		}

		// Local pending from here on.
		if !remoteMoved {
			continue
		}
		if remote.Deleted {
			// A remote deletion never removes a pending local edit, and a
			// tombstone is nothing to fork. The local row wins and will
			// re-upload.
			continue
		}

		fork, err := s.fork(ctx, ws, st, &remote.Conversation, remoteMeta)
		if err != nil {
			return result, err
		}
		if err := st.UpsertConversation(ctx, fork); err != nil {
			return result, fmt.Errorf("failed to insert fork of %s: %w", remote.ID, err)
		}
		result.Forked++
	}

	// API keys travel only through personal workspaces and never fork:
	// last-write-wins by timestamp, except a pending local key always wins
	// until it has been uploaded.
	for _, remote := range contents.APIKeys {
		local, err := st.GetAPIKey(ctx, remote.Provider)
		if errors.Is(err, store.ErrNotFound) {
			if err := st.PutRemoteAPIKey(ctx, &remote.APIKey); err != nil {
				return result, err
			}
			continue
		}
		if err != nil {
			return result, err
		}
		if local.Status == schema.StatusPending {
			continue
		}
		if remote.UpdatedAt.After(local.UpdatedAt) {
			if err := st.PutRemoteAPIKey(ctx, &remote.APIKey); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// fork builds the conflict copy for a remote conversation whose local twin
// has pending edits. The copy gets a fresh ID and a conflict name; it enters
// pending so the next upload carries it.
func (s *Service) fork(ctx context.Context, ws *schema.Workspace, st *store.Store, remote *schema.Conversation, remoteMeta *schema.SnapshotMeta) (*schema.Conversation, error) {
	title, err := s.forkTitle(ctx, ws, st, remote.Title, remoteMeta)
	if err != nil {
		return nil, err
	}

	fork := remote.Clone()
	fork.ID = uuid.NewString()
	fork.Title = title
	fork.UpdatedAt = time.Now().UTC()
	return fork, nil
}

// forkTitle picks the conflict name for a fork.
//
// Personal workspaces use numbered copies: "Title (2)", "Title (3)", first
// free number. Shared workspaces tag with the editor's name, "Title (alice)",
// falling back to "Title (alice 2)" and so on when taken. The editor name
// comes from the downloaded snapshot's metadata when present, otherwise the
// local username.
func (s *Service) forkTitle(ctx context.Context, ws *schema.Workspace, st *store.Store, base string, remoteMeta *schema.SnapshotMeta) (string, error) {
	if ws.IsShared() {
		tag := s.config.Username
		if remoteMeta != nil && remoteMeta.DeviceName != "" {
			tag = remoteMeta.DeviceName
		}
		if tag != "" {
			candidate := forkCandidate(base, fmt.Sprintf(" (%s)", tag))
			taken, err := st.TitleInUse(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !taken {
				return candidate, nil
			}
			for n := 2; ; n++ {
				candidate := forkCandidate(base, fmt.Sprintf(" (%s %d)", tag, n))
				taken, err := st.TitleInUse(ctx, candidate)
				if err != nil {
					return "", err
				}
				if !taken {
					return candidate, nil
				}
			}
		}
		// No identity configured; fall through to numbering.
	}

	for n := 2; ; n++ {
		candidate := forkCandidate(base, fmt.Sprintf(" (%d)", n))
		taken, err := st.TitleInUse(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// forkCandidate joins base and suffix, trimming the base so the fork still
// passes title validation even when the source title sits at the limit.
// The cut lands on a rune boundary.
func forkCandidate(base, suffix string) string {
	if len(base)+len(suffix) <= schema.MaxTitleLen {
		return base + suffix
	}
	keep := schema.MaxTitleLen - len(suffix)
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(base[keep]) {
		keep--
	}
	return base[:keep] + suffix
}
