package storage

import (
	"path/filepath"
	"testing"

	"github.com/ghuser/xscontrol/pkg/model"
)

func TestInsertEvent_RecentFiringsNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.db")
	s, err := OpenEdgeStore(path)
	if err != nil {
		t.Fatalf("OpenEdgeStore: %v", err)
	}
	defer s.Close()

	if err := s.InsertEvent("HighLatency", model.RulesContext{"network_latency": 200}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := s.InsertEvent("LowEnergy", model.RulesContext{"energy_level": 10}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	rows, err := s.RecentFirings(10)
	if err != nil {
		t.Fatalf("RecentFirings: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 firings, got %d", len(rows))
	}
	if rows[0]["rule"] != "LowEnergy" {
		t.Fatalf("expected newest-first, got %+v", rows[0])
	}
}
