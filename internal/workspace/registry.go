// Package workspace manages the registry of configured storage scopes.
//
// The registry is a single YAML file under the data directory listing every
// workspace this device syncs: its kind (personal or shared), the Drive
// folder it routes to, and for shared workspaces the member display names
// used in conflict naming.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
)

// RegistryFile is the registry's file name under the data directory.
const RegistryFile = "workspaces.yaml"

// Registry holds the configured workspaces, persisted as YAML.
type Registry struct {
	path string

	mu         sync.RWMutex
	workspaces map[string]*schema.Workspace
}

// registryDoc is the on-disk shape.
type registryDoc struct {
	Workspaces []*schema.Workspace `yaml:"workspaces"`
}

// Load reads the registry from dataDir, creating an empty one if the file
// doesn't exist yet.
func Load(dataDir string) (*Registry, error) {
	path := filepath.Join(dataDir, RegistryFile)
	reg := &Registry{
		path:       path,
		workspaces: make(map[string]*schema.Workspace),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace registry: %w", err)
	}

	var doc registryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workspace registry: %w", err)
	}

	for _, ws := range doc.Workspaces {
		if err := ws.Validate(); err != nil {
			return nil, fmt.Errorf("invalid workspace %q in registry: %w", ws.ID, err)
		}
		reg.workspaces[ws.ID] = ws
	}

	return reg, nil
}

// Add registers a workspace and persists the registry.
// Returns an error if the ID is already in use.
func (r *Registry) Add(ws *schema.Workspace) error {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workspaces[ws.ID]; exists {
		return fmt.Errorf("workspace %q already exists", ws.ID)
	}

	r.workspaces[ws.ID] = ws
	return r.saveLocked()
}

// Remove deletes a workspace from the registry and persists it.
// The workspace's database file is left on disk.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workspaces[id]; !exists {
		return fmt.Errorf("workspace %q not found", id)
	}

	delete(r.workspaces, id)
	return r.saveLocked()
}

// Get returns a workspace by ID.
func (r *Registry) Get(id string) (*schema.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace %q not found", id)
	}
	return ws, nil
}

// List returns all workspaces ordered by ID.
func (r *Registry) List() []*schema.Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*schema.Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// saveLocked writes the registry to disk. Caller holds r.mu.
func (r *Registry) saveLocked() error {
	doc := registryDoc{Workspaces: make([]*schema.Workspace, 0, len(r.workspaces))}
	for _, ws := range r.workspaces {
		doc.Workspaces = append(doc.Workspaces, ws)
	}
	sort.Slice(doc.Workspaces, func(i, j int) bool { return doc.Workspaces[i].ID < doc.Workspaces[j].ID })

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Atomic replace so a crash mid-write can't truncate the registry.
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write workspace registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace workspace registry: %w", err)
	}
	return nil
}

// DBPath returns the database file path for a workspace under dataDir.
func DBPath(dataDir, workspaceID string) string {
	return filepath.Join(dataDir, "workspaces", workspaceID+".db")
}
