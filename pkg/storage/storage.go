// Package storage persists edge and controller state in an embedded,
// single-writer key/value store (go.etcd.io/bbolt). bbolt serializes all
// writes through one file-level lock, which is exactly the "one writer at a
// time" guarantee the shared storage handle needs.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// DB wraps a bbolt handle. Both the edge and controller binaries embed one
// DB and call the bucket-specific methods declared in edge.go / controller.go.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// bucket this package knows about exists.
func Open(path string, buckets ...[]byte) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		// bolt.Open does not create parent directories.
		if err := ensureDir(dir); err != nil {
			return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
		}
	}

	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return &DB{bolt: bdb}, nil
}

// Close closes the underlying bbolt file.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// Ping satisfies pkg/httpx.HealthChecker by checking the database is still
// answering a read-only transaction.
func (d *DB) Ping(ctx context.Context) error {
	return d.bolt.View(func(tx *bolt.Tx) error { return nil })
}
