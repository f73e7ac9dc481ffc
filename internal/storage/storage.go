package storage

import (
	"context"
	"errors"

	"github.com/ehallam/gmassist/internal/display"
)

// ErrNotFound indicates a requested record is missing. A first run with no
// persisted snapshot is reported with this error, not a failure.
var ErrNotFound = errors.New("record not found")

// SnapshotStore persists the last-known display state, one record per GM
// profile.
//
// SaveSnapshot must be atomic: a reader observes either the previous
// snapshot or the new one, never a partial write. seq carries the caller's
// monotonically increasing sequence id; an implementation must discard a
// save whose seq is not greater than the stored one, so late completions of
// older writes can never overtake newer state. LoadSnapshot returns the
// stored seq alongside the state so a new session can seed its counter
// above the previous session's and keep saving.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, profile string) (display.State, uint64, error)
	SaveSnapshot(ctx context.Context, profile string, seq uint64, state display.State) error
	Close() error
}
