package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
)

func personal(id string) *schema.Workspace {
	return &schema.Workspace{ID: id, Name: "Workspace " + id, Kind: schema.KindPersonal}
}

func TestRegistryLoadEmpty(t *testing.T) {
	reg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reg.List()) != 0 {
		t.Errorf("fresh registry has %d workspaces", len(reg.List()))
	}
}

func TestRegistryAddPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := reg.Add(personal("personal")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	shared := &schema.Workspace{
		ID:       "team",
		Name:     "Team",
		Kind:     schema.KindShared,
		FolderID: "folder-1",
		Members:  []string{"alice", "bob"},
	}
	if err := reg.Add(shared); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// A fresh load sees both, sorted by ID.
	reg2, err := Load(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	list := reg2.List()
	if len(list) != 2 {
		t.Fatalf("reloaded registry has %d workspaces, want 2", len(list))
	}
	if list[0].ID != "personal" || list[1].ID != "team" {
		t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}

	got, err := reg2.Get("team")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FolderID != "folder-1" || len(got.Members) != 2 {
		t.Errorf("shared workspace lost fields: %+v", got)
	}
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := reg.Add(personal("p")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Add(personal("p")); err == nil {
		t.Error("expected error for duplicate ID")
	}
	if err := reg.Add(&schema.Workspace{ID: "bad", Kind: schema.KindPersonal}); err == nil {
		t.Error("expected error for invalid workspace")
	}
}

func TestRegistryRemove(t *testing.T) {
	dir := t.TempDir()
	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := reg.Add(personal("p")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Remove("p"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := reg.Remove("p"); err == nil {
		t.Error("expected error removing unknown workspace")
	}

	reg2, err := Load(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(reg2.List()) != 0 {
		t.Error("removal did not persist")
	}
}

func TestRegistryRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, RegistryFile), []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected error loading corrupt registry")
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("/data", "personal")
	want := filepath.Join("/data", "workspaces", "personal.db")
	if got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
}
