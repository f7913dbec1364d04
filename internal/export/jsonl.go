// Package export moves conversations between a workspace database and JSONL
// files, one conversation per line. Exports are a portable backup; imports
// enter the database as pending rows so the next sync carries them up.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/store"
)

// Result contains statistics about an export or import run.
type Result struct {
	Read    int
	Written int
	Skipped int
	Errors  []string
}

// Options configures an import.
type Options struct {
	// DryRun parses and validates without writing to the database.
	DryRun bool

	// Overwrite replaces existing conversations with the same ID.
	// When false, colliding IDs are skipped.
	Overwrite bool
}

// ToJSONL writes every conversation in the store to w, one JSON object per
// line. Tombstoned rows are omitted.
func ToJSONL(ctx context.Context, st *store.Store, w io.Writer) (*Result, error) {
	rows, err := st.ListConversations(ctx, store.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	result := &Result{}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for i := range rows {
		result.Read++
		if err := enc.Encode(&rows[i].Conversation); err != nil {
			return nil, fmt.Errorf("failed to encode conversation %s: %w", rows[i].ID, err)
		}
		result.Written++
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush output: %w", err)
	}
	return result, nil
}

// ExportFile writes every conversation in the store to path as JSONL.
func ExportFile(ctx context.Context, st *store.Store, path string) (*Result, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	result, err := ToJSONL(ctx, st, f)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	return result, nil
}

// FromJSONL reads conversations from r and upserts them into the store under
// workspaceID. Imported rows are written as pending so they reach the remote
// on the next sync. Malformed lines abort the import with a line-numbered
// error.
func FromJSONL(ctx context.Context, st *store.Store, workspaceID string, r io.Reader, opts Options) (*Result, error) {
	result := &Result{}
	dec := json.NewDecoder(r)
	lineNum := 0

	for {
		var conv schema.Conversation
		if err := dec.Decode(&conv); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++
		result.Read++

		conv.WorkspaceID = workspaceID
		conv.SetDefaults()
		if err := conv.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			result.Skipped++
			continue
		}

		if !opts.Overwrite {
			_, err := st.GetConversation(ctx, conv.ID)
			if err == nil {
				result.Skipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("failed to check conversation %s: %w", conv.ID, err)
			}
		}

		if opts.DryRun {
			result.Written++
			continue
		}

		if err := st.UpsertConversation(ctx, &conv); err != nil {
			return nil, fmt.Errorf("failed to import conversation %s: %w", conv.ID, err)
		}
		result.Written++
	}

	return result, nil
}

// ImportFile reads conversations from a JSONL file at path into the store.
func ImportFile(ctx context.Context, st *store.Store, workspaceID, path string, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return FromJSONL(ctx, st, workspaceID, f, opts)
}
