package websocket

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/nfrund/relay/internal/session"
)

var (
	// ErrSendBufferFull is returned when a client is not draining its queue.
	ErrSendBufferFull = errors.New("client send buffer full")
	// ErrClientClosed is returned when sending to a client that has gone.
	ErrClientClosed = errors.New("client closed")
)

// Client is one live websocket connection. It implements relay.Conn.
type Client struct {
	id       string
	identity session.Identity
	conn     *websocket.Conn
	logger   *slog.Logger

	// send is a buffered channel of outbound frames, drained by writePump.
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newClient(id string, identity session.Identity, conn *websocket.Conn, buffer int, logger *slog.Logger) *Client {
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		logger:   logger.With("conn_id", id, "user_id", identity.UserID),
	}
}

// ID returns the transport-assigned connection id.
func (c *Client) ID() string { return c.id }

// Identity returns what the client declared at connect time.
func (c *Client) Identity() session.Identity { return c.identity }

// Send queues a frame without blocking. A full queue drops the frame.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// shutdown stops accepting frames and ends writePump. Safe to call twice.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
