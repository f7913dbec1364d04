// Package snapshot builds and reads the binary database files exchanged
// with the remote.
//
// A snapshot is a standalone SQLite database with the same schema as a
// workspace store, populated by copying rows out of the live database. It is
// opaque to the transport: the remote stores it as a plain blob beside a
// small JSON metadata file.
//
// Shared-workspace redaction happens here: api_keys rows are never written
// into a shared workspace's snapshot, and any api_keys rows found in a
// downloaded shared snapshot are dropped on load.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/store"
)

// Contents holds the rows carried by a snapshot.
type Contents struct {
	Conversations []*store.ConversationRow
	APIKeys       []*store.APIKeyRow
}

// Build writes a snapshot of src into a new database file under dir and
// returns its path. Tombstoned conversations are included so deletions
// propagate to other devices.
//
// The file is complete once Build returns (WAL checkpointed and closed) and
// can be uploaded as-is.
func Build(ctx context.Context, src *store.Store, ws *schema.Workspace, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%d.db", ws.ID, time.Now().UnixNano()))

	dst, err := store.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer dst.Close()

	if err := dst.InitSchema(ctx); err != nil {
		return "", fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	convs, err := src.ListConversations(ctx, store.ListFilter{
		IncludeArchived: true,
		IncludeDeleted:  true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read conversations for snapshot: %w", err)
	}
	for _, c := range convs {
		if err := dst.PutRemoteConversation(ctx, &c.Conversation); err != nil {
			return "", fmt.Errorf("failed to copy conversation %s into snapshot: %w", c.ID, err)
		}
	}

	// Credential redaction: shared snapshots never carry the api_keys table.
	if !ws.IsShared() {
		keys, err := src.ListAPIKeys(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read api keys for snapshot: %w", err)
		}
		for _, k := range keys {
			if err := dst.PutRemoteAPIKey(ctx, &k.APIKey); err != nil {
				return "", fmt.Errorf("failed to copy api key %s into snapshot: %w", k.Provider, err)
			}
		}
	}

	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	return path, nil
}

// Load opens a downloaded snapshot file and reads its rows.
//
// For shared workspaces any api_keys rows in the snapshot are ignored: a
// misbehaving or older peer must not be able to inject credentials.
func Load(ctx context.Context, path string, ws *schema.Workspace) (*Contents, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	// An empty or foreign file surfaces here as a schema/query error.
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("snapshot is not a workspace database: %w", err)
	}

	convs, err := db.ListConversations(ctx, store.ListFilter{
		IncludeArchived: true,
		IncludeDeleted:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot conversations: %w", err)
	}

	contents := &Contents{Conversations: convs}

	if !ws.IsShared() {
		keys, err := db.ListAPIKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot api keys: %w", err)
		}
		contents.APIKeys = keys
	}

	return contents, nil
}

// BuildMeta assembles the metadata blob describing a snapshot of src.
func BuildMeta(ctx context.Context, src *store.Store, ws *schema.Workspace, deviceID, deviceName string) (*schema.SnapshotMeta, error) {
	convCount, err := src.CountConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	keyCount := 0
	if !ws.IsShared() {
		keyCount, err = src.CountAPIKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count api keys: %w", err)
		}
	}

	return &schema.SnapshotMeta{
		FormatVersion: schema.SnapshotFormatVersion,
		WorkspaceID:   ws.ID,
		DeviceID:      deviceID,
		DeviceName:    deviceName,
		CreatedAt:     time.Now().UTC(),
		Conversations: convCount,
		APIKeys:       keyCount,
	}, nil
}
