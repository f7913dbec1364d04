package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion is the current snapshot schema revision. A downloaded
// metadata blob with a newer version aborts the sync rather than merging a
// database this build cannot understand.
const SnapshotFormatVersion = 1

// SnapshotMeta is the JSON metadata blob uploaded beside each binary
// database snapshot. It lets a device reject incompatible snapshots before
// downloading the database file.
type SnapshotMeta struct {
	FormatVersion int       `json:"format_version"`
	WorkspaceID   string    `json:"workspace_id"`
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Conversations int       `json:"conversations"`
	APIKeys       int       `json:"api_keys"`
}

// Validate checks if the SnapshotMeta has valid field values.
func (m *SnapshotMeta) Validate() error {
	if m.FormatVersion <= 0 {
		return fmt.Errorf("format_version is required")
	}
	if m.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if m.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Marshal encodes the metadata as pretty-printed JSON.
func (m *SnapshotMeta) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot metadata: %w", err)
	}
	return data, nil
}

// ParseSnapshotMeta decodes and validates a metadata blob.
func ParseSnapshotMeta(data []byte) (*SnapshotMeta, error) {
	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot metadata: %w", err)
	}
	return &meta, nil
}
