// Package controller owns the canonical display state and the player
// surface process lifecycle on the GM side.
package controller

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehallam/gmassist/internal/channel"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

// Phase is the player surface connection state.
type Phase int

const (
	// PhaseDisconnected means no surface process is attached.
	PhaseDisconnected Phase = iota
	// PhaseLaunching means a surface process was started but has not
	// signalled ready yet.
	PhaseLaunching
	// PhaseConnected means the surface completed the handshake.
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseLaunching:
		return "launching"
	case PhaseConnected:
		return "connected"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

const (
	defaultLaunchTimeout    = 10 * time.Second
	defaultTerminateTimeout = 3 * time.Second
)

// Process is a handle to a running player surface process.
type Process interface {
	// Wait blocks until the process exits and returns a non-nil error for
	// abnormal termination.
	Wait() error
	// Kill forcibly terminates the process.
	Kill() error
}

// Launcher starts the player surface process pointed at a channel socket.
type Launcher interface {
	Launch(ctx context.Context, socketPath string) (Process, error)
}

// ExecLauncher launches the gmassist-player binary via os/exec.
type ExecLauncher struct {
	// BinPath is the player binary. Empty means "gmassist-player" next to
	// the controller executable, falling back to PATH lookup.
	BinPath string
}

// Launch implements Launcher.
func (l ExecLauncher) Launch(ctx context.Context, socketPath string) (Process, error) {
	bin := l.BinPath
	if bin == "" {
		bin = "gmassist-player"
		if self, err := os.Executable(); err == nil {
			sibling := filepath.Join(filepath.Dir(self), bin)
			if _, err := os.Stat(sibling); err == nil {
				bin = sibling
			}
		}
	}
	cmd := exec.CommandContext(ctx, bin, "--socket", socketPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player process: %w", err)
	}
	return execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Events notifies the coordinator about surface lifecycle transitions.
// Callbacks run off the supervisor's internal goroutines and must not call
// back into the supervisor while holding their own locks indefinitely.
type Events struct {
	// Ready fires when a freshly launched surface can render; the
	// coordinator responds by sending the snapshot.
	Ready func()
	// Disconnected fires when the surface goes away. unexpected is false
	// only for controller-requested termination.
	Disconnected func(unexpected bool)
	// LaunchFailed fires when the process could not start or never
	// signalled ready within the launch timeout.
	LaunchFailed func(err error)
}

// Supervisor drives the player surface process through the
// disconnected/launching/connected state machine.
type Supervisor struct {
	launcher      Launcher
	socketDir     string
	launchTimeout time.Duration
	events        Events

	mu          sync.Mutex
	phase       Phase
	gen         int
	server      *channel.Server
	proc        Process
	terminating bool
	exited      chan struct{}
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSocketDir sets the directory holding per-session channel sockets.
func WithSocketDir(dir string) SupervisorOption {
	return func(s *Supervisor) {
		if dir != "" {
			s.socketDir = dir
		}
	}
}

// WithLaunchTimeout bounds the wait for the surface's ready signal.
func WithLaunchTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.launchTimeout = d
		}
	}
}

// NewSupervisor creates a supervisor in the disconnected phase.
func NewSupervisor(launcher Launcher, events Events, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		launcher:      launcher,
		socketDir:     os.TempDir(),
		launchTimeout: defaultLaunchTimeout,
		events:        events,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current connection phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Launch starts a new surface process and begins the bounded wait for its
// ready signal. It returns immediately; the outcome arrives through Events.
// Launching while not disconnected is a no-op.
func (s *Supervisor) Launch(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.phase = PhaseLaunching
	s.terminating = false
	s.exited = make(chan struct{})
	s.mu.Unlock()

	// One socket per session, uuid-suffixed so a stale surface from a
	// previous run can never reattach.
	socketPath := filepath.Join(s.socketDir, fmt.Sprintf("gmassist-player-%s.sock", uuid.NewString()))

	server, err := channel.NewServer(socketPath, channel.Handlers{
		OnReady:  func() { s.handleReady(gen) },
		OnClosed: func(graceful bool) { s.handleGone(gen, fmt.Errorf("surface connection closed")) },
	})
	if err != nil {
		// Report asynchronously: Launch may run under coordinator locks
		// that the failure handler also takes.
		go s.failLaunch(gen, err)
		return err
	}

	proc, err := s.launcher.Launch(ctx, socketPath)
	if err != nil {
		_ = server.Close()
		err = gmerrors.Wrap(gmerrors.CodeLaunchFailed, "launch player surface", err)
		go s.failLaunch(gen, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = server.Close()
		_ = proc.Kill()
		return nil
	}
	s.server = server
	s.proc = proc
	exited := s.exited
	s.mu.Unlock()

	go s.monitorProcess(gen, proc, exited)
	go s.watchLaunchTimeout(gen)
	return nil
}

// Send forwards one envelope to the connected surface.
func (s *Supervisor) Send(env channel.Envelope) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return channel.ErrDisconnected
	}
	return server.Send(env)
}

// Terminate asks a live surface to exit and waits briefly before killing
// it. Termination marks the teardown as expected: no relaunch follows.
func (s *Supervisor) Terminate(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.terminating = true
	server := s.server
	proc := s.proc
	exited := s.exited
	s.mu.Unlock()

	if server != nil {
		_ = server.Send(channel.Envelope{Kind: channel.KindTerminate})
	}

	wait := defaultTerminateTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}
	if exited != nil {
		select {
		case <-exited:
		case <-time.After(wait):
			if proc != nil {
				_ = proc.Kill()
			}
		case <-ctx.Done():
			if proc != nil {
				_ = proc.Kill()
			}
		}
	}

	s.teardown(s.currentGen(), false)
	return nil
}

func (s *Supervisor) currentGen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Supervisor) monitorProcess(gen int, proc Process, exited chan struct{}) {
	err := proc.Wait()
	close(exited)

	s.mu.Lock()
	stale := s.gen != gen || s.phase == PhaseDisconnected
	terminating := s.terminating
	s.mu.Unlock()
	if stale {
		return
	}

	if terminating {
		s.teardown(gen, false)
		return
	}
	// Any exit the controller did not request is unexpected, regardless of
	// exit code.
	_ = err
	s.teardown(gen, true)
}

func (s *Supervisor) watchLaunchTimeout(gen int) {
	timer := time.NewTimer(s.launchTimeout)
	defer timer.Stop()
	<-timer.C

	s.mu.Lock()
	timedOut := s.gen == gen && s.phase == PhaseLaunching
	proc := s.proc
	s.mu.Unlock()
	if !timedOut {
		return
	}

	if proc != nil {
		_ = proc.Kill()
	}
	err := gmerrors.New(gmerrors.CodeLaunchTimeout,
		fmt.Sprintf("player surface not ready within %s", s.launchTimeout))
	s.teardownSilent(gen)
	if s.events.LaunchFailed != nil {
		s.events.LaunchFailed(err)
	}
}

// handleReady fires the ready event for the initial handshake and for any
// later ready from a live surface: re-sending ready is the surface's
// resynchronization request, answered with a fresh snapshot.
func (s *Supervisor) handleReady(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.phase == PhaseDisconnected {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseConnected
	s.mu.Unlock()

	if s.events.Ready != nil {
		s.events.Ready()
	}
}

func (s *Supervisor) handleGone(gen int, cause error) {
	s.mu.Lock()
	stale := s.gen != gen || s.phase == PhaseDisconnected
	terminating := s.terminating
	s.mu.Unlock()
	if stale {
		return
	}
	s.teardown(gen, !terminating)
}

// failLaunch reverts a launch that never got a process off the ground.
func (s *Supervisor) failLaunch(gen int, err error) {
	s.teardownSilent(gen)
	if s.events.LaunchFailed != nil {
		s.events.LaunchFailed(err)
	}
}

// teardown discards the channel endpoint, marks the surface disconnected,
// and reports the disconnect exactly once per generation.
func (s *Supervisor) teardown(gen int, unexpected bool) {
	if !s.teardownLocked(gen) {
		return
	}
	if s.events.Disconnected != nil {
		s.events.Disconnected(unexpected)
	}
}

func (s *Supervisor) teardownSilent(gen int) {
	s.teardownLocked(gen)
}

func (s *Supervisor) teardownLocked(gen int) bool {
	s.mu.Lock()
	if s.gen != gen || s.phase == PhaseDisconnected {
		s.mu.Unlock()
		return false
	}
	s.phase = PhaseDisconnected
	server := s.server
	s.server = nil
	s.proc = nil
	s.mu.Unlock()

	if server != nil {
		_ = server.Close()
	}
	return true
}
