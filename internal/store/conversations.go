package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ConversationRow pairs a conversation with its sync bookkeeping.
type ConversationRow struct {
	schema.Conversation

	Status     schema.SyncStatus
	SyncedHash string
}

// Pending reports whether the row has local changes awaiting upload.
func (r *ConversationRow) Pending() bool {
	return r.Status == schema.StatusPending
}

// UpsertConversation inserts or updates a conversation as a LOCAL mutation:
// the row is marked pending and will be carried by the next snapshot upload.
//
// An existing row keeps its synced_hash: that hash records what the remote
// held at the last sync, which the merge needs to tell a remote edit from an
// unchanged remote copy.
func (s *Store) UpsertConversation(ctx context.Context, c *schema.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}
	return s.putConversation(ctx, c, schema.StatusPending, sql.NullString{})
}

// PutRemoteConversation inserts or updates a conversation from a downloaded
// snapshot. The row is marked synced with its content hash recorded, so a
// later merge can tell whether the remote copy diverged again.
//
// Merge machinery only; never call for local edits.
func (s *Store) PutRemoteConversation(ctx context.Context, c *schema.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}
	hash := sql.NullString{String: c.ContentHash(), Valid: true}
	return s.putConversation(ctx, c, schema.StatusSynced, hash)
}

func (s *Store) putConversation(ctx context.Context, c *schema.Conversation, status schema.SyncStatus, hash sql.NullString) error {
	participantsJSON, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	// Local mutations (hash not valid) preserve the row's synced_hash;
	// remote writes replace it with the downloaded content's hash.
	hashUpdate := "synced_hash = conversations.synced_hash"
	if hash.Valid {
		hashUpdate = "synced_hash = excluded.synced_hash"
	}

	query := `
	INSERT INTO conversations (
		id, workspace_id, title, source, participants, messages,
		tags, archived, deleted, created_at, updated_at, sync_status, synced_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		source = excluded.source,
		participants = excluded.participants,
		messages = excluded.messages,
		tags = excluded.tags,
		archived = excluded.archived,
		deleted = excluded.deleted,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status,
		` + hashUpdate + `
	`

	_, err = s.conn.ExecContext(ctx, query,
		c.ID,
		c.WorkspaceID,
		c.Title,
		c.Source,
		string(participantsJSON),
		string(c.Messages),
		string(tagsJSON),
		boolToInt(c.Archived),
		boolToInt(c.Deleted),
		c.CreatedAt.Format(time.RFC3339Nano),
		c.UpdatedAt.Format(time.RFC3339Nano),
		string(status),
		hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", c.ID, err)
	}

	return nil
}

// GetConversation retrieves a single conversation by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*ConversationRow, error) {
	row := s.conn.QueryRowContext(ctx, selectConversation+" WHERE id = ?", id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// DeleteConversation tombstones a conversation. The row stays in the table
// with deleted=1 and pending status so the deletion propagates through the
// next snapshot instead of resurrecting on merge.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `
	UPDATE conversations
	SET deleted = 1, updated_at = ?, sync_status = ?
	WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), string(schema.StatusPending), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter configures ListConversations.
type ListFilter struct {
	// Tag filters by tag (empty = all tags)
	Tag string
	// Source filters by originating source (empty = all)
	Source string
	// Since restricts to conversations updated at or after this time
	Since time.Time
	// IncludeArchived includes archived conversations
	IncludeArchived bool
	// IncludeDeleted includes tombstoned conversations
	IncludeDeleted bool
	// PendingOnly restricts to rows awaiting upload
	PendingOnly bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListConversations retrieves conversations matching the given filter,
// newest updated first.
func (s *Store) ListConversations(ctx context.Context, filter ListFilter) ([]*ConversationRow, error) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "c.deleted = 0")
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "c.archived = 0")
	}
	if filter.Source != "" {
		conditions = append(conditions, "c.source = ?")
		args = append(args, filter.Source)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "c.updated_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.PendingOnly {
		conditions = append(conditions, "c.sync_status = ?")
		args = append(args, string(schema.StatusPending))
	}

	selectClause := "SELECT"
	if filter.Tag != "" {
		selectClause += " DISTINCT"
	}

	query := selectClause + ` c.id, c.workspace_id, c.title, c.source, c.participants,
	       c.messages, c.tags, c.archived, c.deleted, c.created_at, c.updated_at,
	       c.sync_status, c.synced_hash
	FROM conversations c
	`

	if filter.Tag != "" {
		query += `, json_each(c.tags)`
		conditions = append(conditions, "json_each.value = ?")
		args = append(args, filter.Tag)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY c.updated_at DESC, c.id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// ListPendingConversations returns all rows awaiting upload, tombstones
// included.
func (s *Store) ListPendingConversations(ctx context.Context) ([]*ConversationRow, error) {
	return s.ListConversations(ctx, ListFilter{
		IncludeArchived: true,
		IncludeDeleted:  true,
		PendingOnly:     true,
	})
}

// CountConversations returns the number of live (non-tombstoned)
// conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// CountPending returns the number of conversation rows awaiting upload.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE sync_status = ?",
		string(schema.StatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending conversations: %w", err)
	}
	return count, nil
}

// MarkConversationsSynced flips the given rows to synced, recording the
// content hash each row carried in the uploaded snapshot.
//
// Called by the engine only after a successful upload. The UPDATE is guarded
// by updated_at so a row mutated mid-upload stays pending.
func (s *Store) MarkConversationsSynced(ctx context.Context, rows []*ConversationRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	UPDATE conversations
	SET sync_status = ?, synced_hash = ?
	WHERE id = ? AND updated_at = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark-synced statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			string(schema.StatusSynced),
			r.Conversation.ContentHash(),
			r.ID,
			r.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to mark conversation %s synced: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mark-synced transaction: %w", err)
	}
	return nil
}

// TitleInUse reports whether any live conversation already uses the title.
// Fork naming checks candidate titles with this.
func (s *Store) TitleInUse(ctx context.Context, title string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE deleted = 0 AND title = ?",
		title).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check title %q: %w", title, err)
	}
	return count > 0, nil
}

const selectConversation = `
	SELECT c.id, c.workspace_id, c.title, c.source, c.participants,
	       c.messages, c.tags, c.archived, c.deleted, c.created_at, c.updated_at,
	       c.sync_status, c.synced_hash
	FROM conversations c`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*ConversationRow, error) {
	var (
		out                         ConversationRow
		source                      sql.NullString
		participantsJSON, tagsJSON  string
		messages                    sql.NullString
		archived, deleted           int
		createdAt, updatedAt, state string
		syncedHash                  sql.NullString
	)

	err := row.Scan(
		&out.ID,
		&out.WorkspaceID,
		&out.Title,
		&source,
		&participantsJSON,
		&messages,
		&tagsJSON,
		&archived,
		&deleted,
		&createdAt,
		&updatedAt,
		&state,
		&syncedHash,
	)
	if err != nil {
		return nil, err
	}

	out.Source = source.String
	out.Archived = archived != 0
	out.Deleted = deleted != 0
	out.Status = schema.SyncStatus(state)
	out.SyncedHash = syncedHash.String
	if messages.Valid && messages.String != "" {
		out.Messages = json.RawMessage(messages.String)
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		out.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		out.UpdatedAt = t
	}

	if err := unmarshalList(participantsJSON, &out.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := unmarshalList(tagsJSON, &out.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	return &out, nil
}

func scanConversations(rows *sql.Rows) ([]*ConversationRow, error) {
	var out []*ConversationRow
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

func unmarshalList(raw string, dst *[]string) error {
	if raw == "" || raw == "null" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
