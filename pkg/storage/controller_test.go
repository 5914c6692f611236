package storage

import (
	"path/filepath"
	"testing"

	"github.com/ghuser/xscontrol/pkg/model"
)

func newTestControllerStore(t *testing.T) *ControllerStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controller.db")
	s, err := OpenControllerStore(path)
	if err != nil {
		t.Fatalf("OpenControllerStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertEdge_CreatesThenUpdates(t *testing.T) {
	s := newTestControllerStore(t)

	rec, err := s.UpsertEdge("edge-A", "1.0.0")
	if err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}
	if rec.Status != model.EdgeOnline {
		t.Fatalf("expected ONLINE, got %s", rec.Status)
	}

	first := rec.LastSeen
	rec2, err := s.UpsertEdge("edge-A", "")
	if err != nil {
		t.Fatalf("UpsertEdge (touch): %v", err)
	}
	if rec2.Version != "1.0.0" {
		t.Fatalf("expected version preserved, got %q", rec2.Version)
	}
	if !rec2.LastSeen.After(first) && rec2.LastSeen != first {
		t.Fatalf("expected last_seen to advance or stay equal")
	}

	edges, err := s.ListEdges()
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
}

func TestAckCommand_TransitionsOnceAndNeverReverts(t *testing.T) {
	s := newTestControllerStore(t)

	entry := model.CommandLogEntry{CmdID: "abc123", EdgeID: "edge-A", Status: model.CommandSent}
	if err := s.PutCommand(entry); err != nil {
		t.Fatalf("PutCommand: %v", err)
	}

	if err := s.AckCommand("abc123", "3 rules reloaded"); err != nil {
		t.Fatalf("AckCommand: %v", err)
	}
	got, err := s.GetCommand("abc123")
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if got.Status != model.CommandAck || got.Result != "3 rules reloaded" || got.AckedAt == nil {
		t.Fatalf("unexpected command state: %+v", got)
	}

	// A second ack must not overwrite the first (invariant 3: never ACK → SENT,
	// and exactly-once transition).
	ackedAt := *got.AckedAt
	if err := s.AckCommand("abc123", "late duplicate"); err != nil {
		t.Fatalf("AckCommand (duplicate): %v", err)
	}
	got2, err := s.GetCommand("abc123")
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if got2.Result != "3 rules reloaded" || !got2.AckedAt.Equal(ackedAt) {
		t.Fatalf("duplicate ack must not change the recorded result/timestamp")
	}
}

func TestAckCommand_UnknownCmdIDIsNoop(t *testing.T) {
	s := newTestControllerStore(t)
	if err := s.AckCommand("does-not-exist", "whatever"); err != nil {
		t.Fatalf("AckCommand on unknown id should be a no-op, got %v", err)
	}
}

func TestLatestTelemetry_NewestFirstAndBounded(t *testing.T) {
	s := newTestControllerStore(t)

	for i := 0; i < 5; i++ {
		rec := model.TelemetryRecord{EdgeID: "edge-A", Topic: "network/metrics", Data: map[string]any{"i": i}}
		if err := s.AppendTelemetry(rec); err != nil {
			t.Fatalf("AppendTelemetry: %v", err)
		}
	}

	rows, err := s.LatestTelemetry(3)
	if err != nil {
		t.Fatalf("LatestTelemetry: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Data["i"].(float64) != 4 {
		t.Fatalf("expected newest-first ordering, got %+v", rows[0])
	}
}
