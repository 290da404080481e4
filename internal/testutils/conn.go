package testutils

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Frame is a decoded outbound envelope captured by a FakeConn.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FakeConn implements relay.Conn and records every frame sent to it.
type FakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

// NewFakeConn creates a connection with a random id.
func NewFakeConn() *FakeConn {
	return &FakeConn{id: uuid.NewString()}
}

// NewNamedConn creates a connection with a fixed id, handy in assertions.
func NewNamedConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) ID() string { return c.id }

// Send records the frame, or returns the error set with FailWith.
func (c *FakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

// FailWith makes every following Send return err.
func (c *FakeConn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Frames decodes every frame received so far.
func (c *FakeConn) Frames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("frame is not a valid envelope: %v", err)
		}
		out = append(out, f)
	}
	return out
}

// Count returns how many frames were received.
func (c *FakeConn) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
