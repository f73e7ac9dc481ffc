package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Client is the player surface's end of the state channel.
type Client struct {
	conn *lineConn
}

// Dial connects to the controller's socket.
func Dial(socketPath string) (*Client, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial channel socket: %w", err)
	}
	return &Client{conn: newLineConn(conn)}, nil
}

// SendReady tells the controller the window is constructed and able to
// render. The controller answers with a full snapshot, so re-sending ready
// doubles as a resynchronization request.
func (c *Client) SendReady() error {
	return c.conn.send(Envelope{Kind: KindReady})
}

// SendClosed tells the controller the window is going away.
func (c *Client) SendClosed() error {
	return c.conn.send(Envelope{Kind: KindClosed})
}

// Receive blocks for the next envelope from the controller. It returns
// io.EOF once the controller hangs up.
func (c *Client) Receive() (Envelope, error) {
	env, err := c.conn.receive()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return Envelope{}, io.EOF
		}
		return Envelope{}, err
	}
	return env, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.close()
}
