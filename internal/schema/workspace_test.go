package schema

import "testing"

func TestWorkspaceValidate(t *testing.T) {
	tests := []struct {
		name    string
		ws      Workspace
		wantErr bool
	}{
		{"personal ok", Workspace{ID: "personal", Name: "My Vault", Kind: KindPersonal}, false},
		{"shared ok", Workspace{ID: "team", Name: "Team", Kind: KindShared, FolderID: "abc123"}, false},
		{"missing id", Workspace{Name: "x", Kind: KindPersonal}, true},
		{"missing name", Workspace{ID: "x", Kind: KindPersonal}, true},
		{"bad id chars", Workspace{ID: "my vault!", Name: "x", Kind: KindPersonal}, true},
		{"unknown kind", Workspace{ID: "x", Name: "x", Kind: "public"}, true},
		{"personal with folder", Workspace{ID: "x", Name: "x", Kind: KindPersonal, FolderID: "abc"}, true},
		{"shared without folder", Workspace{ID: "x", Name: "x", Kind: KindShared}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ws.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkspaceSnapshotNames(t *testing.T) {
	ws := Workspace{ID: "team", Name: "Team", Kind: KindShared, FolderID: "f"}

	if got := ws.SnapshotName(); got != "team.db" {
		t.Errorf("SnapshotName() = %q, want %q", got, "team.db")
	}
	if got := ws.MetaName(); got != "team.meta.json" {
		t.Errorf("MetaName() = %q, want %q", got, "team.meta.json")
	}
}

func TestWorkspaceIsShared(t *testing.T) {
	personal := Workspace{ID: "p", Name: "p", Kind: KindPersonal}
	shared := Workspace{ID: "s", Name: "s", Kind: KindShared, FolderID: "f"}

	if personal.IsShared() {
		t.Error("personal workspace reported as shared")
	}
	if !shared.IsShared() {
		t.Error("shared workspace not reported as shared")
	}
}
