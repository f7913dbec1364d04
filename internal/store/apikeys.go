package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
)

// APIKeyRow pairs an API key with its sync bookkeeping.
type APIKeyRow struct {
	schema.APIKey

	Status schema.SyncStatus
}

// Pending reports whether the key has local changes awaiting upload.
func (r *APIKeyRow) Pending() bool {
	return r.Status == schema.StatusPending
}

// PutAPIKey inserts or updates an API key as a local mutation. The provider
// is unique per workspace; setting a key for an existing provider replaces it.
func (s *Store) PutAPIKey(ctx context.Context, k *schema.APIKey) error {
	if err := k.Validate(); err != nil {
		return fmt.Errorf("invalid api key: %w", err)
	}
	return s.putAPIKey(ctx, k, schema.StatusPending)
}

// PutRemoteAPIKey inserts or updates an API key from a downloaded snapshot,
// marking it synced. Merge machinery only.
func (s *Store) PutRemoteAPIKey(ctx context.Context, k *schema.APIKey) error {
	if err := k.Validate(); err != nil {
		return fmt.Errorf("invalid api key: %w", err)
	}
	return s.putAPIKey(ctx, k, schema.StatusSynced)
}

func (s *Store) putAPIKey(ctx context.Context, k *schema.APIKey, status schema.SyncStatus) error {
	query := `
	INSERT INTO api_keys (id, provider, api_key, created_at, updated_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(provider) DO UPDATE SET
		api_key = excluded.api_key,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`

	_, err := s.conn.ExecContext(ctx, query,
		k.ID,
		k.Provider,
		k.Key,
		k.CreatedAt.Format(time.RFC3339Nano),
		k.UpdatedAt.Format(time.RFC3339Nano),
		string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to put api key for provider %s: %w", k.Provider, err)
	}
	return nil
}

// GetAPIKey retrieves the key for a provider.
// Returns ErrNotFound if no key is stored for it.
func (s *Store) GetAPIKey(ctx context.Context, provider string) (*APIKeyRow, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, provider, api_key, created_at, updated_at, sync_status
	FROM api_keys WHERE provider = ?`, provider)

	key, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns all stored keys ordered by provider.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*APIKeyRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, provider, api_key, created_at, updated_at, sync_status
	FROM api_keys ORDER BY provider ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKeyRow
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return out, nil
}

// DeleteAPIKey removes the key for a provider.
// Returns nil if the key doesn't exist (idempotent).
func (s *Store) DeleteAPIKey(ctx context.Context, provider string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM api_keys WHERE provider = ?", provider)
	if err != nil {
		return fmt.Errorf("failed to delete api key for provider %s: %w", provider, err)
	}
	return nil
}

// CountPendingAPIKeys returns the number of keys awaiting upload.
func (s *Store) CountPendingAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM api_keys WHERE sync_status = ?",
		string(schema.StatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending api keys: %w", err)
	}
	return count, nil
}

// CountAPIKeys returns the number of stored keys.
func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	return count, nil
}

// MarkAPIKeysSynced flips the given keys to synced after a successful upload,
// guarded by updated_at like conversations.
func (s *Store) MarkAPIKeysSynced(ctx context.Context, keys []*APIKeyRow) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE api_keys SET sync_status = ? WHERE provider = ? AND updated_at = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark-synced statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		_, err := stmt.ExecContext(ctx,
			string(schema.StatusSynced), k.Provider, k.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to mark api key %s synced: %w", k.Provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark-synced transaction: %w", err)
	}
	return nil
}

// ListPendingAPIKeys returns keys awaiting upload.
func (s *Store) ListPendingAPIKeys(ctx context.Context) ([]*APIKeyRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, provider, api_key, created_at, updated_at, sync_status
	FROM api_keys WHERE sync_status = ? ORDER BY provider ASC`,
		string(schema.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKeyRow
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return out, nil
}

func scanAPIKey(row rowScanner) (*APIKeyRow, error) {
	var (
		out                         APIKeyRow
		createdAt, updatedAt, state string
	)

	err := row.Scan(&out.ID, &out.Provider, &out.Key, &createdAt, &updatedAt, &state)
	if err != nil {
		return nil, err
	}

	out.Status = schema.SyncStatus(state)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		out.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		out.UpdatedAt = t
	}

	return &out, nil
}
