// Package schema provides the record types synchronized between the local
// workspace database and its remote snapshot.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxTitleLen is the longest allowed conversation title, in bytes.
const MaxTitleLen = 500

// SyncStatus marks whether a row has local changes awaiting upload.
type SyncStatus string

const (
	// StatusPending indicates the row was mutated locally since the last
	// successful sync and must not be overwritten by a merge.
	StatusPending SyncStatus = "pending"
	// StatusSynced indicates the row matches the last uploaded snapshot.
	StatusSynced SyncStatus = "synced"
)

// Conversation is the unit of chat data the engine replicates.
//
// The message list is an opaque JSON blob: the engine orders, merges and
// forks whole conversations, never individual messages. Fields are flat with
// last-write-wins timestamps so two devices can resolve most edits without
// a fork.
type Conversation struct {
	// ===== Core Identification =====
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	// ===== Content =====
	Title        string          `json:"title"`
	Source       string          `json:"source,omitempty"` // chat-lab, extension, imported
	Participants []string        `json:"participants,omitempty"`
	Messages     json.RawMessage `json:"messages,omitempty"`

	// ===== Classification =====
	Tags     []string `json:"tags,omitempty"`
	Archived bool     `json:"archived,omitempty"`

	// ===== Lifecycle =====
	Deleted bool `json:"deleted,omitempty"` // tombstone, propagated through snapshots

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Conversation has valid field values.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > MaxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLen, len(c.Title))
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if len(c.Messages) > 0 && !json.Valid(c.Messages) {
		return fmt.Errorf("messages must be valid JSON")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (c *Conversation) SetDefaults() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
}

// Touch sets UpdatedAt to the current time.
// Call whenever any field is modified.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

// ContentHash returns a stable hash of the conversation's synchronized
// content. Two devices holding identical content produce identical hashes,
// which is how the merge decides whether the remote copy actually changed
// since the last sync.
func (c *Conversation) ContentHash() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	// Encoding a fixed-order struct keeps the hash independent of map order.
	_ = enc.Encode(struct {
		Title        string          `json:"t"`
		Source       string          `json:"s"`
		Participants []string        `json:"p"`
		Messages     json.RawMessage `json:"m"`
		Tags         []string        `json:"g"`
		Archived     bool            `json:"a"`
		Deleted      bool            `json:"d"`
	}{c.Title, c.Source, c.Participants, c.Messages, c.Tags, c.Archived, c.Deleted})
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Tags = append([]string(nil), c.Tags...)
	out.Messages = append(json.RawMessage(nil), c.Messages...)
	return &out
}
