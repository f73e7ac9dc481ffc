// Package bbolt provides a BoltDB-backed snapshot store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ehallam/gmassist/internal/display"
	"github.com/ehallam/gmassist/internal/storage"
)

const snapshotBucket = "display_snapshot"

// record is the durable projection of a display state: the state itself
// plus the sequence id of the save that produced it.
type record struct {
	Seq   uint64        `json:"seq"`
	State display.State `json:"state"`
}

// Store persists display snapshots in a BoltDB file.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the snapshot database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadSnapshot returns the last saved snapshot for the profile and the seq
// it was written with, or storage.ErrNotFound when none exists.
func (s *Store) LoadSnapshot(ctx context.Context, profile string) (display.State, uint64, error) {
	if err := ctx.Err(); err != nil {
		return display.State{}, 0, err
	}
	if s == nil || s.db == nil {
		return display.State{}, 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(profile) == "" {
		return display.State{}, 0, fmt.Errorf("profile is required")
	}

	var rec record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		payload := bucket.Get([]byte(profile))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return display.State{}, 0, err
	}
	return rec.State, rec.Seq, nil
}

// SaveSnapshot atomically replaces the profile's snapshot. A save whose seq
// is not greater than the stored seq is discarded, so an older write that
// completes late never overwrites newer state.
func (s *Store) SaveSnapshot(ctx context.Context, profile string, seq uint64, state display.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(profile) == "" {
		return fmt.Errorf("profile is required")
	}

	payload, err := json.Marshal(record{Seq: seq, State: state})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		if existing := bucket.Get([]byte(profile)); existing != nil {
			var prev record
			if err := json.Unmarshal(existing, &prev); err == nil && prev.Seq >= seq {
				return nil
			}
		}
		return bucket.Put([]byte(profile), payload)
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		if err != nil {
			return fmt.Errorf("create snapshot bucket: %w", err)
		}
		return nil
	})
}
