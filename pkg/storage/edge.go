package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

// firingRecord is the on-disk shape of one events-table row, mirroring
// local_db.py's single events(ts, rule, data) table — the edge bus and the
// rules engine both write into it, keyed by either a topic name or a rule
// name (the Python column is literally named "rule" for both uses).
type firingRecord struct {
	Timestamp time.Time `json:"ts"`
	Name      string    `json:"rule"`
	Data      any       `json:"data"`
}

// EdgeStore opens the edge-side bbolt file. It satisfies the persistence
// hooks used by edge/bus (raw publishes) and edge/rules (rule firings).
type EdgeStore struct {
	*DB
}

// OpenEdgeStore opens (or creates) the edge database at path.
func OpenEdgeStore(path string) (*EdgeStore, error) {
	db, err := Open(path, bucketEvents)
	if err != nil {
		return nil, err
	}
	return &EdgeStore{DB: db}, nil
}

// InsertEvent records one events-table row (a bus publish or a rule firing),
// keyed by a monotonically increasing sequence number so ForEach iteration
// preserves insertion order.
func (s *EdgeStore) InsertEvent(name string, data any) error {
	rec := firingRecord{Timestamp: time.Now(), Name: name, Data: data}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal firing: %w", err)
	}
	return s.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// RecentFirings returns up to limit most-recent events-table rows, newest
// first. The table holds both rule firings and bus publishes, so rows of
// both kinds are returned; no HTTP endpoint calls this.
func (s *EdgeStore) RecentFirings(limit int) ([]map[string]any, error) {
	var out []map[string]any
	err := s.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec firingRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, map[string]any{
				"ts":   rec.Timestamp,
				"rule": rec.Name,
				"data": rec.Data,
			})
		}
		return nil
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
