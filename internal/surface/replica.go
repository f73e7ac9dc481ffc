// Package surface is the player-facing display process: it holds a
// read-only replica of the controller's display state and renders it
// full-screen for the table.
package surface

import (
	"sync"

	"github.com/ehallam/gmassist/internal/channel"
	"github.com/ehallam/gmassist/internal/display"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

// Replica mirrors the controller's display state on the surface side. It
// never mutates state on its own: a snapshot establishes the baseline and
// deltas patch it field by field.
type Replica struct {
	mu       sync.Mutex
	state    display.State
	baseline bool
	lastSeq  uint64
}

// NewReplica returns a replica with no baseline. Deltas are rejected until
// the first snapshot arrives.
func NewReplica() *Replica {
	return &Replica{}
}

// State returns a copy of the replicated state.
func (r *Replica) State() display.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// HasBaseline reports whether a snapshot has been applied.
func (r *Replica) HasBaseline() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseline
}

// ApplySnapshot replaces the replica wholesale.
func (r *Replica) ApplySnapshot(seq uint64, state display.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Clone()
	r.state.Normalize()
	r.baseline = true
	r.lastSeq = seq
}

// ApplyDelta patches the fields named by the delta. A delta before any
// snapshot is a protocol violation: the replica has nothing to patch.
func (r *Replica) ApplyDelta(seq uint64, delta channel.Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.baseline {
		return gmerrors.New(gmerrors.CodeProtocolViolation,
			"received delta before the baseline snapshot")
	}

	if delta.ActiveImageRef != nil {
		r.state.ActiveImageRef = *delta.ActiveImageRef
	}
	if delta.OverlayVisible != nil {
		r.state.OverlayVisible = *delta.OverlayVisible
	}
	if delta.Overlay != nil {
		r.state.Overlay = *delta.Overlay
	}
	if delta.Initiative != nil {
		initiative := *delta.Initiative
		initiative.Combatants = append([]display.Combatant(nil), initiative.Combatants...)
		r.state.Initiative = initiative
	}
	r.state.Normalize()
	r.lastSeq = seq
	return nil
}
