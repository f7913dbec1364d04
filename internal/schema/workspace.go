package schema

import (
	"fmt"
	"regexp"
)

// WorkspaceKind distinguishes personal and shared storage scopes.
type WorkspaceKind string

const (
	// KindPersonal routes snapshots to the hidden per-application Drive
	// storage area (appDataFolder).
	KindPersonal WorkspaceKind = "personal"
	// KindShared routes snapshots to an explicitly shared Drive folder.
	KindShared WorkspaceKind = "shared"
)

var workspaceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Workspace describes a named storage scope: where its snapshot pair lives
// in Drive and, for shared workspaces, who participates in it.
type Workspace struct {
	ID   string        `yaml:"id" json:"id"`
	Name string        `yaml:"name" json:"name"`
	Kind WorkspaceKind `yaml:"kind" json:"kind"`

	// FolderID is the Drive folder holding the snapshot pair.
	// Only meaningful for shared workspaces; personal workspaces use the
	// appDataFolder space and leave this empty.
	FolderID string `yaml:"folder_id,omitempty" json:"folder_id,omitempty"`

	// Members lists display names of shared-workspace participants.
	// Used for username-tagged fork naming.
	Members []string `yaml:"members,omitempty" json:"members,omitempty"`
}

// Validate checks if the Workspace has valid field values.
func (w *Workspace) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !workspaceIDPattern.MatchString(w.ID) {
		return fmt.Errorf("id may only contain alphanumerics, underscore and hyphen (got %q)", w.ID)
	}
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch w.Kind {
	case KindPersonal:
		if w.FolderID != "" {
			return fmt.Errorf("personal workspaces must not set folder_id")
		}
	case KindShared:
		if w.FolderID == "" {
			return fmt.Errorf("shared workspaces require folder_id")
		}
	default:
		return fmt.Errorf("kind must be %q or %q (got %q)", KindPersonal, KindShared, w.Kind)
	}
	return nil
}

// IsShared reports whether the workspace routes to a shared Drive folder.
func (w *Workspace) IsShared() bool {
	return w.Kind == KindShared
}

// SnapshotName returns the Drive file name of the binary database snapshot.
func (w *Workspace) SnapshotName() string {
	return fmt.Sprintf("%s.db", w.ID)
}

// MetaName returns the Drive file name of the snapshot metadata blob.
func (w *Workspace) MetaName() string {
	return fmt.Sprintf("%s.meta.json", w.ID)
}
