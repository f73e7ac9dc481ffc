package controller

import (
	"context"
	"sync"
	"testing"

	"github.com/ehallam/gmassist/internal/channel"
	"github.com/ehallam/gmassist/internal/display"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
	"github.com/ehallam/gmassist/internal/storage"
)

type fakeSurface struct {
	mu         sync.Mutex
	phase      Phase
	sent       []channel.Envelope
	launches   int
	terminates int
}

func (f *fakeSurface) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeSurface) setPhase(p Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = p
}

func (f *fakeSurface) Launch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	f.phase = PhaseLaunching
	return nil
}

func (f *fakeSurface) Terminate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	f.phase = PhaseDisconnected
	return nil
}

func (f *fakeSurface) Send(env channel.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase != PhaseConnected {
		return channel.ErrDisconnected
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSurface) envelopes() []channel.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Envelope(nil), f.sent...)
}

func (f *fakeSurface) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// memStore is an in-memory SnapshotStore with the monotonic discard rule.
type memStore struct {
	mu    sync.Mutex
	seq   uint64
	state display.State
	has   bool
}

func (m *memStore) LoadSnapshot(ctx context.Context, profile string) (display.State, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return display.State{}, 0, storage.ErrNotFound
	}
	return m.state.Clone(), m.seq, nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, profile string, seq uint64, state display.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.has && m.seq >= seq {
		return nil
	}
	m.seq = seq
	m.state = state.Clone()
	m.has = true
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) current() (display.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.has
}

type recordingNotifier struct {
	mu       sync.Mutex
	warnings []string
}

func (n *recordingNotifier) Warn(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, message)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeSurface, *memStore) {
	t.Helper()
	store := &memStore{}
	saves := storage.NewSaveQueue(store, "default")
	co := NewCoordinator(display.DefaultState(), saves, &recordingNotifier{})
	surface := &fakeSurface{phase: PhaseConnected}
	co.SetSurface(surface)
	co.HandleSurfaceReady()
	surface.reset()
	t.Cleanup(func() { _ = saves.Close() })
	return co, surface, store
}

func TestScenarioImageOverlayAndCombatants(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.SetActiveImage(ctx, "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	if err := co.SetOverlayVisible(ctx, true); err != nil {
		t.Fatalf("set overlay visible: %v", err)
	}
	if err := co.SetCombatants(ctx, []display.Combatant{
		{Name: "Bob", Conditions: 0},
		{Name: "Ann", Conditions: 2},
	}); err != nil {
		t.Fatalf("set combatants: %v", err)
	}

	state := co.State()
	if state.ActiveImageRef != "map_01" {
		t.Fatalf("expected map_01, got %q", state.ActiveImageRef)
	}
	if !state.OverlayVisible {
		t.Fatal("expected overlay visible")
	}
	names := []string{state.Initiative.Combatants[0].Name, state.Initiative.Combatants[1].Name}
	if names[0] != "Ann" || names[1] != "Bob" {
		t.Fatalf("expected [Ann Bob], got %v", names)
	}

	// Exactly one delta per mutating operation.
	sent := surface.envelopes()
	if len(sent) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(sent))
	}
	for i, env := range sent {
		if env.Kind != channel.KindDelta {
			t.Fatalf("message %d: expected delta, got %q", i, env.Kind)
		}
		if env.Snapshot != nil {
			t.Fatalf("message %d: steady-state traffic must not carry snapshots", i)
		}
	}
	if sent[0].Delta.ActiveImageRef == nil || sent[0].Delta.Initiative != nil {
		t.Fatalf("first delta should only name the image field: %+v", sent[0].Delta)
	}
}

func TestClearingImageForcesOverlayOff(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.SetActiveImage(ctx, "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	if err := co.SetOverlayVisible(ctx, true); err != nil {
		t.Fatalf("set overlay visible: %v", err)
	}
	if err := co.SetActiveImage(ctx, ""); err != nil {
		t.Fatalf("clear active image: %v", err)
	}

	state := co.State()
	if state.OverlayVisible {
		t.Fatal("expected overlay forced off when image cleared")
	}

	// The clear travels as one delta naming both changed fields.
	sent := surface.envelopes()
	last := sent[len(sent)-1]
	if last.Delta.ActiveImageRef == nil || *last.Delta.ActiveImageRef != "" {
		t.Fatalf("expected cleared image ref in delta: %+v", last.Delta)
	}
	if last.Delta.OverlayVisible == nil || *last.Delta.OverlayVisible {
		t.Fatalf("expected overlay-off in the same delta: %+v", last.Delta)
	}
}

func TestOverlayWithoutImageRejected(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)

	err := co.SetOverlayVisible(context.Background(), true)
	if gmerrors.CodeOf(err) != gmerrors.CodeOverlayWithoutImage {
		t.Fatalf("expected overlay-without-image code, got %v", err)
	}
	if co.State().OverlayVisible {
		t.Fatal("rejected operation must not mutate state")
	}
	if len(surface.envelopes()) != 0 {
		t.Fatal("rejected operation must not broadcast")
	}
}

func TestInvalidGeometryRejected(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)

	err := co.SetOverlayGeometry(context.Background(), display.OverlayGeometry{X: 1.5, Y: 0, ScaleX: 1, ScaleY: 1})
	if gmerrors.CodeOf(err) != gmerrors.CodeGeometryOutOfRange {
		t.Fatalf("expected geometry code, got %v", err)
	}
	if co.State().Overlay != display.DefaultOverlayGeometry() {
		t.Fatal("rejected geometry must not be applied")
	}
	if len(surface.envelopes()) != 0 {
		t.Fatal("rejected operation must not broadcast")
	}
}

func TestAdvanceRoundClampsAtZero(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.AdvanceInitiativeRound(ctx, 2); err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if err := co.AdvanceInitiativeRound(ctx, -5); err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if got := co.State().Initiative.Round; got != 0 {
		t.Fatalf("expected round clamped to 0, got %d", got)
	}
}

func TestInvariantHeldAcrossOperationSequences(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	ops := []func() error{
		func() error { return co.SetActiveImage(ctx, "map_01") },
		func() error { return co.SetOverlayVisible(ctx, true) },
		func() error { return co.AdvanceInitiativeRound(ctx, 3) },
		func() error { return co.SetActiveImage(ctx, "") },
		func() error { return co.SetOverlayVisible(ctx, true) },
		func() error { return co.SetActiveImage(ctx, "map_02") },
		func() error { return co.SetCombatants(ctx, []display.Combatant{{Name: "Grim"}}) },
		func() error { return co.SetOverlayVisible(ctx, true) },
		func() error { return co.SetActiveImage(ctx, "  ") },
	}
	for i, op := range ops {
		_ = op() // some ops legitimately reject; the invariant must hold regardless
		state := co.State()
		if state.ActiveImageRef == "" && state.OverlayVisible {
			t.Fatalf("invariant violated after op %d: overlay visible with no image", i)
		}
	}
}

func TestCombatantNameRequired(t *testing.T) {
	co, _, _ := newTestCoordinator(t)

	err := co.SetCombatants(context.Background(), []display.Combatant{{Name: "  "}})
	if gmerrors.CodeOf(err) != gmerrors.CodeCombatantNameEmpty {
		t.Fatalf("expected combatant name code, got %v", err)
	}
}

func TestBringToFrontNotPersisted(t *testing.T) {
	co, surface, store := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.SetActiveImage(ctx, "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	if err := co.RequestBringToFront(ctx); err != nil {
		t.Fatalf("bring to front: %v", err)
	}

	sent := surface.envelopes()
	last := sent[len(sent)-1]
	if last.Kind != channel.KindBringToFront {
		t.Fatalf("expected bring_to_front, got %q", last.Kind)
	}

	if err := co.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	state, has := store.current()
	if !has {
		t.Fatal("expected final persist on shutdown")
	}
	if state.ActiveImageRef != "map_01" {
		t.Fatalf("expected persisted image, got %q", state.ActiveImageRef)
	}
}

func TestOpsQueueWhileLaunchingAndFlushAfterSnapshot(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	co.HandleSurfaceDisconnected(true)
	surface.setPhase(PhaseLaunching)
	if err := co.SetActiveImage(ctx, "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	if len(surface.envelopes()) != 0 {
		t.Fatal("deltas must queue while launching")
	}

	surface.setPhase(PhaseConnected)
	co.HandleSurfaceReady()

	sent := surface.envelopes()
	if len(sent) < 2 {
		t.Fatalf("expected snapshot plus flushed delta, got %d messages", len(sent))
	}
	if sent[0].Kind != channel.KindSnapshot {
		t.Fatalf("expected snapshot first, got %q", sent[0].Kind)
	}
	if sent[0].Snapshot.ActiveImageRef != "map_01" {
		t.Fatalf("snapshot must carry current state, got %q", sent[0].Snapshot.ActiveImageRef)
	}
	if sent[1].Kind != channel.KindDelta {
		t.Fatalf("expected queued delta after snapshot, got %q", sent[1].Kind)
	}
}

func TestDeltaNeverPrecedesHandshakeSnapshot(t *testing.T) {
	store := &memStore{}
	saves := storage.NewSaveQueue(store, "default")
	co := NewCoordinator(display.DefaultState(), saves, &recordingNotifier{})
	t.Cleanup(func() { _ = saves.Close() })

	// The supervisor already reports a connection, but the handshake
	// snapshot has not been sent yet. An operation winning that race must
	// queue behind the snapshot, not overtake it.
	surface := &fakeSurface{phase: PhaseConnected}
	co.SetSurface(surface)

	if err := co.SetActiveImage(context.Background(), "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	if len(surface.envelopes()) != 0 {
		t.Fatal("delta must not be sent before the handshake snapshot")
	}

	co.HandleSurfaceReady()
	sent := surface.envelopes()
	if len(sent) != 2 {
		t.Fatalf("expected snapshot plus queued delta, got %d messages", len(sent))
	}
	if sent[0].Kind != channel.KindSnapshot {
		t.Fatalf("expected snapshot first, got %q", sent[0].Kind)
	}
	if sent[1].Kind != channel.KindDelta {
		t.Fatalf("expected queued delta after snapshot, got %q", sent[1].Kind)
	}
}

func TestRepeatedReadyResendsSnapshot(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.SetActiveImage(ctx, "map_01"); err != nil {
		t.Fatalf("set active image: %v", err)
	}

	// A surface that lost its baseline re-sends ready; the coordinator
	// answers with a fresh snapshot carrying the current state.
	co.HandleSurfaceReady()

	sent := surface.envelopes()
	last := sent[len(sent)-1]
	if last.Kind != channel.KindSnapshot {
		t.Fatalf("expected resync snapshot, got %q", last.Kind)
	}
	if last.Snapshot.ActiveImageRef != "map_01" {
		t.Fatalf("resync snapshot must carry current state, got %q", last.Snapshot.ActiveImageRef)
	}
}

func TestOpRelaunchesAfterUnexpectedDisconnect(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	surface.setPhase(PhaseDisconnected)
	co.HandleSurfaceDisconnected(true)

	if err := co.SetActiveImage(ctx, "map_02"); err != nil {
		t.Fatalf("set active image: %v", err)
	}
	surface.mu.Lock()
	launches := surface.launches
	surface.mu.Unlock()
	if launches != 1 {
		t.Fatalf("expected relaunch on next mutating op, got %d launches", launches)
	}
}

func TestExplicitCloseIsTerminal(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.ClosePlayer(ctx); err != nil {
		t.Fatalf("close player: %v", err)
	}
	if err := co.SetActiveImage(ctx, "map_03"); err != nil {
		t.Fatalf("set active image: %v", err)
	}

	surface.mu.Lock()
	launches := surface.launches
	terminates := surface.terminates
	surface.mu.Unlock()
	if terminates != 1 {
		t.Fatalf("expected one terminate, got %d", terminates)
	}
	if launches != 0 {
		t.Fatal("explicit close must suppress auto-relaunch")
	}

	// Reopening clears the terminal close.
	if err := co.OpenPlayer(ctx); err != nil {
		t.Fatalf("open player: %v", err)
	}
	surface.mu.Lock()
	launches = surface.launches
	surface.mu.Unlock()
	if launches != 1 {
		t.Fatalf("expected launch after reopen, got %d", launches)
	}
}

func TestCloseWhileClosedReported(t *testing.T) {
	co, surface, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := co.ClosePlayer(ctx); err != nil {
		t.Fatalf("close player: %v", err)
	}
	err := co.ClosePlayer(ctx)
	if gmerrors.CodeOf(err) != gmerrors.CodeSurfaceClosed {
		t.Fatalf("expected surface-closed code, got %v", err)
	}

	surface.mu.Lock()
	terminates := surface.terminates
	surface.mu.Unlock()
	if terminates != 1 {
		t.Fatalf("second close must not terminate again, got %d terminates", terminates)
	}
}

func TestLaunchFailureWarnsUser(t *testing.T) {
	store := &memStore{}
	saves := storage.NewSaveQueue(store, "default")
	notifier := &recordingNotifier{}
	co := NewCoordinator(display.DefaultState(), saves, notifier)
	co.SetSurface(&fakeSurface{phase: PhaseDisconnected})
	t.Cleanup(func() { _ = saves.Close() })

	co.HandleLaunchFailed(gmerrors.New(gmerrors.CodeLaunchTimeout, "player surface not ready within 10s"))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(notifier.warnings))
	}
}
