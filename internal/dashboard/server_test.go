package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
}

func takeMessage(t *testing.T, s *Server) Message {
	t.Helper()
	select {
	case msg := <-s.broadcast:
		return msg
	default:
		t.Fatal("no message was broadcast")
		return Message{}
	}
}

func TestSyncFinishedBroadcastsFailure(t *testing.T) {
	s := newTestServer(t)
	ws := &schema.Workspace{ID: "w1", Name: "W1", Kind: schema.KindPersonal}

	s.SyncFinished(ws, syncpkg.TriggerInterval, nil, errors.New("network unreachable"), syncpkg.Degraded)

	msg := takeMessage(t, s)
	if msg.Type != MessageTypeSyncFailed {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeSyncFailed)
	}

	var data SyncFailedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if data.Trigger != string(syncpkg.TriggerInterval) {
		t.Errorf("Trigger = %q, want %q", data.Trigger, syncpkg.TriggerInterval)
	}
	if data.WorkspaceID != "w1" || data.Error != "network unreachable" || data.Health != "degraded" {
		t.Errorf("unexpected failure payload: %+v", data)
	}
}

func TestSyncFinishedBroadcastsCompletion(t *testing.T) {
	s := newTestServer(t)
	ws := &schema.Workspace{ID: "w1", Name: "W1", Kind: schema.KindPersonal}

	report := &syncpkg.Report{
		WorkspaceID: "w1",
		Trigger:     syncpkg.TriggerManual,
		Merge:       syncpkg.MergeResult{Inserted: 1, Forked: 2},
		Uploaded:    3,
	}
	s.SyncFinished(ws, syncpkg.TriggerManual, report, nil, syncpkg.Healthy)

	msg := takeMessage(t, s)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeSyncComplete)
	}

	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if data.Trigger != string(syncpkg.TriggerManual) {
		t.Errorf("Trigger = %q, want %q", data.Trigger, syncpkg.TriggerManual)
	}
	if data.Inserted != 1 || data.Forked != 2 || data.Uploaded != 3 || data.Health != "healthy" {
		t.Errorf("unexpected completion payload: %+v", data)
	}
}
