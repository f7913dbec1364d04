package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JournalEntry records one sync attempt for a workspace.
type JournalEntry struct {
	ID          int64
	WorkspaceID string
	Reason      string // manual, interval, watcher
	StartedAt   time.Time
	FinishedAt  time.Time
	Inserted    int
	Updated     int
	Forked      int
	Uploaded    int
	Error       string // empty on success
}

// AppendJournal records a finished sync attempt.
func (s *Store) AppendJournal(ctx context.Context, e *JournalEntry) error {
	if e.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if e.Reason == "" {
		return fmt.Errorf("reason is required")
	}

	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO sync_journal (
		workspace_id, reason, started_at, finished_at,
		inserted, updated, forked, uploaded, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.WorkspaceID,
		e.Reason,
		e.StartedAt.Format(time.RFC3339Nano),
		e.FinishedAt.Format(time.RFC3339Nano),
		e.Inserted,
		e.Updated,
		e.Forked,
		e.Uploaded,
		nullIfEmpty(e.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListJournal returns the most recent sync attempts, newest first.
// limit <= 0 returns everything.
func (s *Store) ListJournal(ctx context.Context, limit int) ([]*JournalEntry, error) {
	query := `
	SELECT id, workspace_id, reason, started_at, finished_at,
	       inserted, updated, forked, uploaded, error
	FROM sync_journal
	ORDER BY id DESC`

	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var out []*JournalEntry
	for rows.Next() {
		var (
			e                     JournalEntry
			startedAt, finishedAt string
			errText               sql.NullString
		)
		err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Reason, &startedAt, &finishedAt,
			&e.Inserted, &e.Updated, &e.Forked, &e.Uploaded, &errText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			e.FinishedAt = t
		}
		e.Error = errText.String
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
