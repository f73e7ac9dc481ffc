package surface

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ehallam/gmassist/internal/channel"
)

// Session owns the surface's end of the state channel. It feeds incoming
// envelopes into the replica and exposes the one-shot signals the renderer
// polls each frame.
type Session struct {
	client  *channel.Client
	replica *Replica

	front     atomic.Bool
	terminate atomic.Bool

	mu   sync.Mutex
	err  error
	done chan struct{}
}

// NewSession dials the controller socket and announces readiness. The
// controller responds with the baseline snapshot.
func NewSession(socketPath string) (*Session, error) {
	client, err := channel.Dial(socketPath)
	if err != nil {
		return nil, err
	}
	s := &Session{
		client:  client,
		replica: NewReplica(),
		done:    make(chan struct{}),
	}
	if err := client.SendReady(); err != nil {
		_ = client.Close()
		return nil, err
	}
	go s.receiveLoop()
	return s, nil
}

// Replica returns the replicated display state.
func (s *Session) Replica() *Replica {
	return s.replica
}

// TakeBringToFront consumes a pending bring-to-front signal.
func (s *Session) TakeBringToFront() bool {
	return s.front.Swap(false)
}

// Terminated reports whether the controller asked the surface to exit.
func (s *Session) Terminated() bool {
	return s.terminate.Load()
}

// Err returns the transport error that ended the session, nil while the
// session is live or after a clean terminate.
func (s *Session) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close announces the window is going away and drops the connection.
func (s *Session) Close() error {
	_ = s.client.SendClosed()
	return s.client.Close()
}

func (s *Session) receiveLoop() {
	defer close(s.done)
	for {
		env, err := s.client.Receive()
		if err != nil {
			if s.terminate.Load() {
				// Expected hangup after a terminate request.
				return
			}
			if errors.Is(err, io.EOF) {
				err = errors.New("controller closed the state channel")
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		switch env.Kind {
		case channel.KindSnapshot:
			if env.Snapshot == nil {
				log.Printf("snapshot envelope without payload, seq %d", env.Seq)
				continue
			}
			s.replica.ApplySnapshot(env.Seq, *env.Snapshot)
		case channel.KindDelta:
			if env.Delta == nil {
				continue
			}
			if err := s.replica.ApplyDelta(env.Seq, *env.Delta); err != nil {
				// Out-of-order handshake; ask for a fresh snapshot instead
				// of rendering from nothing.
				log.Printf("state channel: %v; requesting resync", err)
				if err := s.client.SendReady(); err != nil {
					s.mu.Lock()
					s.err = err
					s.mu.Unlock()
					return
				}
			}
		case channel.KindBringToFront:
			s.front.Store(true)
		case channel.KindTerminate:
			s.terminate.Store(true)
			return
		}
	}
}
