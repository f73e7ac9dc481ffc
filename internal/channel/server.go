package channel

import (
	"fmt"
	"net"
	"os"
	"sync"

	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

// ErrDisconnected is returned by Send when no player surface is connected.
var ErrDisconnected = gmerrors.New(gmerrors.CodeChannelDisconnected, "player surface is not connected")

// Handlers receives surface lifecycle events. Callbacks run on the server's
// read goroutine and must not block.
type Handlers struct {
	// OnReady fires when the surface reports its window can render.
	OnReady func()
	// OnClosed fires when the surface goes away. graceful is true when the
	// surface sent an explicit closed message rather than dropping the
	// connection.
	OnClosed func(graceful bool)
}

// Server is the controller's end of the state channel. It owns the unix
// socket, accepts exactly one surface connection at a time, and preserves
// send order per connection.
type Server struct {
	ln       net.Listener
	path     string
	handlers Handlers

	mu     sync.Mutex
	conn   *lineConn
	seq    uint64
	closed bool
}

// NewServer listens on a unix socket at socketPath. A leftover socket file
// from a crashed session is removed first.
func NewServer(socketPath string, handlers Handlers) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	// Leftover sockets can survive a crash on *nix; remove if so.
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on channel socket: %w", err)
	}
	s := &Server{ln: ln, path: socketPath, handlers: handlers}
	go s.acceptLoop()
	return s, nil
}

// Path returns the socket path the surface should dial.
func (s *Server) Path() string {
	return s.path
}

// Connected reports whether a surface connection is currently live.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes one envelope to the connected surface, stamping it with the
// next sequence id. Sends are fire-and-forget; ErrDisconnected is returned
// when no surface is attached.
func (s *Server) Send(env Envelope) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrDisconnected
	}
	s.seq++
	env.Seq = s.seq
	s.mu.Unlock()

	if err := conn.send(env); err != nil {
		// Detach asynchronously: Send may be called under caller locks that
		// the closed handler also takes.
		go s.dropConn(conn, false)
		return gmerrors.Wrap(gmerrors.CodeChannelDisconnected, "send to player surface", err)
	}
	return nil
}

// Close tears down the connection and the listening socket.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.close()
	}
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed || s.conn != nil {
			s.mu.Unlock()
			// Only one player connection per session; reject extras.
			_ = conn.Close()
			continue
		}
		lc := newLineConn(conn)
		s.conn = lc
		s.mu.Unlock()

		go s.readLoop(lc)
	}
}

func (s *Server) readLoop(conn *lineConn) {
	for {
		env, err := conn.receive()
		if err != nil {
			// A dropped connection without an explicit closed message is
			// never graceful.
			s.dropConn(conn, false)
			return
		}
		switch env.Kind {
		case KindReady:
			if s.handlers.OnReady != nil {
				s.handlers.OnReady()
			}
		case KindClosed:
			s.dropConn(conn, true)
			return
		default:
			// Surfaces only speak lifecycle messages; ignore the rest.
		}
	}
}

// dropConn detaches conn if it is still the live connection and notifies
// the closed handler exactly once per connection.
func (s *Server) dropConn(conn *lineConn, graceful bool) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.closed
	s.mu.Unlock()

	_ = conn.close()
	if !closed && s.handlers.OnClosed != nil {
		s.handlers.OnClosed(graceful)
	}
}
