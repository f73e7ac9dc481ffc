// Package channel carries display state between the controller and the
// player surface process.
//
// The transport is a unix domain socket owned by the controller, with
// newline-delimited JSON envelopes. The controller-to-surface direction
// carries snapshots, deltas, and one-shot signals; the surface reports its
// lifecycle (ready, closed) back on the same connection. A single
// connection gives FIFO delivery per surface instance.
package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ehallam/gmassist/internal/display"
)

// Kind identifies the message carried by an envelope.
type Kind string

const (
	// KindSnapshot carries the full display state, sent once per handshake.
	KindSnapshot Kind = "snapshot"
	// KindDelta carries only the fields changed by one controller operation.
	KindDelta Kind = "delta"
	// KindReady is sent by the surface once its window can render.
	KindReady Kind = "ready"
	// KindClosed is sent by the surface when its window closes.
	KindClosed Kind = "closed"
	// KindBringToFront asks the surface to raise its window.
	KindBringToFront Kind = "bring_to_front"
	// KindTerminate asks the surface to exit cleanly.
	KindTerminate Kind = "terminate"
)

// Delta is a partial state update. Nil fields are unchanged.
type Delta struct {
	ActiveImageRef *string                  `json:"activeImageRef,omitempty"`
	OverlayVisible *bool                    `json:"overlayVisible,omitempty"`
	Overlay        *display.OverlayGeometry `json:"overlayGeometry,omitempty"`
	Initiative     *display.Initiative      `json:"initiative,omitempty"`
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return d.ActiveImageRef == nil && d.OverlayVisible == nil &&
		d.Overlay == nil && d.Initiative == nil
}

// Envelope is one wire message.
type Envelope struct {
	Kind     Kind           `json:"kind"`
	Seq      uint64         `json:"seq"`
	Snapshot *display.State `json:"snapshot,omitempty"`
	Delta    *Delta         `json:"delta,omitempty"`
}

// writeEnvelope serializes one envelope followed by a newline. The caller
// holds the connection's write lock.
func writeEnvelope(w *bufio.Writer, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// lineConn wraps a connection with line-oriented envelope framing.
type lineConn struct {
	conn net.Conn
	r    *bufio.Scanner

	mu sync.Mutex
	w  *bufio.Writer
}

func newLineConn(conn net.Conn) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineConn{
		conn: conn,
		r:    scanner,
		w:    bufio.NewWriter(conn),
	}
}

func (c *lineConn) send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeEnvelope(c.w, env)
}

func (c *lineConn) receive() (Envelope, error) {
	for c.r.Scan() {
		line := c.r.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		return env, nil
	}
	if err := c.r.Err(); err != nil {
		return Envelope{}, err
	}
	return Envelope{}, io.EOF
}

func (c *lineConn) close() error {
	return c.conn.Close()
}
