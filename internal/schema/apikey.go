package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey is a provider credential stored in a personal workspace database.
//
// Keys never leave the device through a shared workspace: snapshot export
// redacts the table entirely when the workspace is shared.
type APIKey struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Key       string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the APIKey has valid field values.
func (k *APIKey) Validate() error {
	if k.ID == "" {
		return fmt.Errorf("id is required")
	}
	if k.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if k.Key == "" {
		return fmt.Errorf("api_key is required")
	}
	if k.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if k.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (k *APIKey) SetDefaults() {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if k.CreatedAt.IsZero() {
		k.CreatedAt = now
	}
	if k.UpdatedAt.IsZero() {
		k.UpdatedAt = now
	}
}
