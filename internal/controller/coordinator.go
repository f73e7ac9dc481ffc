package controller

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ehallam/gmassist/internal/channel"
	"github.com/ehallam/gmassist/internal/display"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
	"github.com/ehallam/gmassist/internal/platform/notify"
	"github.com/ehallam/gmassist/internal/storage"
)

// Surface is the coordinator's view of the player surface lifecycle. The
// concrete implementation is *Supervisor; tests substitute fakes.
type Surface interface {
	Phase() Phase
	Launch(ctx context.Context) error
	Terminate(ctx context.Context) error
	Send(env channel.Envelope) error
}

// Coordinator owns the single live display state for a GM session. All
// mutation flows through its operation methods: each one validates,
// updates the in-memory state, schedules a persistence write, and
// broadcasts exactly one delta to the player surface.
type Coordinator struct {
	saves    *storage.SaveQueue
	notifier notify.Notifier

	mu         sync.Mutex
	state      display.State
	surface    Surface
	pending    []channel.Envelope
	userClosed bool
	// ready means the handshake snapshot reached the surface. Deltas are
	// routed directly only once this is set, so no delta can overtake the
	// snapshot even when the supervisor already reports a connection.
	ready bool
}

// NewCoordinator builds a coordinator around the initial (usually
// persisted) state. Structural invariants are enforced on the way in, so a
// hand-edited or corrupted snapshot cannot smuggle in an overlay without an
// image.
func NewCoordinator(initial display.State, saves *storage.SaveQueue, notifier notify.Notifier) *Coordinator {
	initial.Normalize()
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Coordinator{
		state:    initial.Clone(),
		saves:    saves,
		notifier: notifier,
	}
}

// SetSurface attaches the surface supervisor. Must be called before any
// operation; split from the constructor because the supervisor's event
// callbacks point back at the coordinator.
func (c *Coordinator) SetSurface(surface Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = surface
}

// State returns a copy of the current display state.
func (c *Coordinator) State() display.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SetActiveImage replaces the active image reference. Clearing the image
// also forces the overlay hidden; both changes travel in the same delta.
func (c *Coordinator) SetActiveImage(ctx context.Context, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref = strings.TrimSpace(ref)
	c.state.ActiveImageRef = ref

	delta := channel.Delta{ActiveImageRef: &ref}
	if ref == "" && c.state.OverlayVisible {
		c.state.OverlayVisible = false
		visible := false
		delta.OverlayVisible = &visible
	}

	c.persistLocked()
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindDelta, Delta: &delta})
	return nil
}

// SetOverlayVisible toggles the initiative overlay. Enabling it without an
// active image is rejected.
func (c *Coordinator) SetOverlayVisible(ctx context.Context, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if visible && c.state.ActiveImageRef == "" {
		return gmerrors.New(gmerrors.CodeOverlayWithoutImage,
			"cannot show overlay without an active image")
	}
	c.state.OverlayVisible = visible

	c.persistLocked()
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindDelta, Delta: &channel.Delta{
		OverlayVisible: &visible,
	}})
	return nil
}

// SetOverlayGeometry repositions the overlay. Out-of-range geometry is
// rejected and the state left unchanged.
func (c *Coordinator) SetOverlayGeometry(ctx context.Context, geometry display.OverlayGeometry) error {
	if err := geometry.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Overlay = geometry

	c.persistLocked()
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindDelta, Delta: &channel.Delta{
		Overlay: &geometry,
	}})
	return nil
}

// AdvanceInitiativeRound adds delta to the round counter, clamping at
// zero.
func (c *Coordinator) AdvanceInitiativeRound(ctx context.Context, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round := c.state.Initiative.Round + delta
	if round < 0 {
		round = 0
	}
	c.state.Initiative.Round = round

	initiative := c.state.Initiative
	initiative.Combatants = append([]display.Combatant(nil), initiative.Combatants...)
	c.persistLocked()
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindDelta, Delta: &channel.Delta{
		Initiative: &initiative,
	}})
	return nil
}

// SetCombatants replaces the initiative order. The turn-order policy is
// re-applied before storing, so callers never control raw ordering.
func (c *Coordinator) SetCombatants(ctx context.Context, combatants []display.Combatant) error {
	sorted := make([]display.Combatant, 0, len(combatants))
	for _, combatant := range combatants {
		combatant.Name = strings.TrimSpace(combatant.Name)
		if combatant.Name == "" {
			return gmerrors.New(gmerrors.CodeCombatantNameEmpty, "combatant name is required")
		}
		sorted = append(sorted, combatant)
	}
	display.SortCombatants(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Initiative.Combatants = sorted

	initiative := c.state.Initiative
	initiative.Combatants = append([]display.Combatant(nil), sorted...)
	c.persistLocked()
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindDelta, Delta: &channel.Delta{
		Initiative: &initiative,
	}})
	return nil
}

// RequestBringToFront asks the surface to raise its window. The signal is
// one-shot and never persisted; asking while disconnected counts as a
// request to show the window again.
func (c *Coordinator) RequestBringToFront(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userClosed = false
	c.broadcastLocked(ctx, channel.Envelope{Kind: channel.KindBringToFront})
	return nil
}

// OpenPlayer launches the player surface, clearing a previous explicit
// close.
func (c *Coordinator) OpenPlayer(ctx context.Context) error {
	c.mu.Lock()
	c.userClosed = false
	surface := c.surface
	c.mu.Unlock()
	if surface == nil {
		return fmt.Errorf("no surface attached")
	}
	return surface.Launch(ctx)
}

// ClosePlayer terminates the player surface. The close is terminal for the
// session: no auto-relaunch until OpenPlayer. Closing an already-closed
// surface is reported, not silently accepted.
func (c *Coordinator) ClosePlayer(ctx context.Context) error {
	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		return gmerrors.New(gmerrors.CodeSurfaceClosed, "player surface is already closed")
	}
	c.userClosed = true
	c.pending = nil
	c.ready = false
	surface := c.surface
	c.mu.Unlock()
	if surface == nil {
		return nil
	}
	return surface.Terminate(ctx)
}

// Shutdown tears down the session: the surface gets an explicit terminate
// and the final state is flushed to disk.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.userClosed = true
	c.ready = false
	surface := c.surface
	c.mu.Unlock()

	if surface != nil {
		_ = surface.Terminate(ctx)
	}
	if c.saves != nil {
		return c.saves.Close()
	}
	return nil
}

// HandleSurfaceReady runs the handshake: exactly one snapshot, then any
// deltas queued while the surface was launching. It holds the state lock
// across the sends, so an operation racing the handshake either queued its
// delta before the snapshot (and gets flushed after it) or runs after and
// sends directly. A ready from an already-handshaken surface is a resync
// request and gets a fresh snapshot the same way.
func (c *Coordinator) HandleSurfaceReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return
	}

	snapshot := c.state.Clone()
	if err := c.surface.Send(channel.Envelope{Kind: channel.KindSnapshot, Snapshot: &snapshot}); err != nil {
		log.Printf("handshake snapshot: %v", err)
		return
	}
	for _, env := range c.pending {
		if err := c.surface.Send(env); err != nil {
			log.Printf("flush queued message: %v", err)
			return
		}
	}
	c.pending = nil
	c.ready = true
}

// HandleSurfaceDisconnected records a surface loss. Queued messages are
// dropped; the snapshot sent at the next handshake supersedes them.
func (c *Coordinator) HandleSurfaceDisconnected(unexpected bool) {
	c.mu.Lock()
	c.pending = nil
	c.ready = false
	c.mu.Unlock()
	if unexpected {
		log.Printf("player surface disconnected unexpectedly; will relaunch on next change")
	}
}

// HandleLaunchFailed surfaces a launch failure to the GM without touching
// display state.
func (c *Coordinator) HandleLaunchFailed(err error) {
	c.mu.Lock()
	c.pending = nil
	c.ready = false
	c.mu.Unlock()
	c.notifier.Warn(fmt.Sprintf("Player window failed to start: %v", err))
}

// WarnStorage surfaces a persistence failure as a non-blocking warning.
func (c *Coordinator) WarnStorage(err error) {
	c.notifier.Warn(fmt.Sprintf("Could not save display state: %v", err))
}

func (c *Coordinator) persistLocked() {
	if c.saves != nil {
		c.saves.Submit(c.state.Clone())
	}
}

// broadcastLocked delivers one envelope to the surface. Until the
// handshake snapshot has been sent, envelopes queue behind it; an envelope
// arriving with no surface process at all also triggers a relaunch. Called
// with c.mu held.
func (c *Coordinator) broadcastLocked(ctx context.Context, env channel.Envelope) {
	if c.surface == nil || c.userClosed {
		return
	}

	if c.ready {
		if err := c.surface.Send(env); err != nil {
			log.Printf("send to player surface: %v", err)
		}
		return
	}

	c.pending = append(c.pending, env)
	if c.surface.Phase() == PhaseDisconnected {
		if err := c.surface.Launch(ctx); err != nil {
			log.Printf("relaunch player surface: %v", err)
		}
	}
}
