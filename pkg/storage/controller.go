package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ghuser/xscontrol/pkg/model"
)

var (
	bucketEdges     = []byte("edges")
	bucketTelemetry = []byte("telemetry")
	bucketCommands  = []byte("commands")
	bucketRulesets  = []byte("rulesets")
)

// ControllerStore opens the controller-side bbolt file, one bucket per
// record kind (Edge/Telemetry/CommandLog/Ruleset).
type ControllerStore struct {
	*DB
}

// OpenControllerStore opens (or creates) the controller database at path.
func OpenControllerStore(path string) (*ControllerStore, error) {
	db, err := Open(path, bucketEdges, bucketTelemetry, bucketCommands, bucketRulesets)
	if err != nil {
		return nil, err
	}
	return &ControllerStore{DB: db}, nil
}

// UpsertEdge creates or updates the Edge Record for edgeID, setting status
// ONLINE and last_seen=now. The version is only overwritten when non-empty,
// matching mqtt_server.py's register handler (falls back to "unknown").
func (s *ControllerStore) UpsertEdge(edgeID, version string) (model.EdgeRecord, error) {
	var rec model.EdgeRecord
	err := s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEdges)
		if data := b.Get([]byte(edgeID)); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
		} else {
			rec = model.EdgeRecord{EdgeID: edgeID}
		}
		if version != "" {
			rec.Version = version
		} else if rec.Version == "" {
			rec.Version = "unknown"
		}
		rec.LastSeen = time.Now()
		rec.Status = model.EdgeOnline

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(edgeID), data)
	})
	return rec, err
}

// TouchEdge updates last_seen/status for an edge without changing version,
// used when telemetry (not a register message) arrives from a known edge.
func (s *ControllerStore) TouchEdge(edgeID string) error {
	_, err := s.UpsertEdge(edgeID, "")
	return err
}

// ListEdges returns every known Edge Record.
func (s *ControllerStore) ListEdges() ([]model.EdgeRecord, error) {
	var out []model.EdgeRecord
	err := s.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEdges).ForEach(func(_, v []byte) error {
			var rec model.EdgeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// AppendTelemetry appends a Telemetry Record, assigning it a monotonically
// increasing ID.
func (s *ControllerStore) AppendTelemetry(rec model.TelemetryRecord) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTelemetry)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = seq
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// LatestTelemetry returns up to limit Telemetry Records, newest first.
func (s *ControllerStore) LatestTelemetry(limit int) ([]model.TelemetryRecord, error) {
	var out []model.TelemetryRecord
	err := s.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTelemetry).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec model.TelemetryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// PutCommand writes a new Command Log Entry (status SENT).
func (s *ControllerStore) PutCommand(entry model.CommandLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: marshal command: %w", err)
	}
	return s.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommands).Put([]byte(entry.CmdID), data)
	})
}

// GetCommand looks up a Command Log Entry by cmd_id. Returns (nil, nil) if
// not found.
func (s *ControllerStore) GetCommand(cmdID string) (*model.CommandLogEntry, error) {
	var entry *model.CommandLogEntry
	err := s.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommands).Get([]byte(cmdID))
		if data == nil {
			return nil
		}
		var rec model.CommandLogEntry
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		entry = &rec
		return nil
	})
	return entry, err
}

// AckCommand transitions a Command Log Entry SENT → ACK exactly once,
// recording result and ack timestamp. No-op (returns nil) if the entry is
// missing or already acked, preserving invariant 3 (never ACK → SENT).
func (s *ControllerStore) AckCommand(cmdID, result string) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data := b.Get([]byte(cmdID))
		if data == nil {
			return nil
		}
		var rec model.CommandLogEntry
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Status == model.CommandAck {
			return nil
		}
		now := time.Now()
		rec.Status = model.CommandAck
		rec.Result = result
		rec.AckedAt = &now

		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(cmdID), out)
	})
}

// AppendRuleset records an audit row for a pushed ruleset.
func (s *ControllerStore) AppendRuleset(rec model.RulesetRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal ruleset: %w", err)
	}
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRulesets)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}
