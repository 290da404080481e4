// Package relay defines the contract between the routing core and the
// transport that owns live connections.
package relay

// Conn is an opaque handle to one live bidirectional session.
// Send must not block; implementations queue or drop.
type Conn interface {
	// ID is unique for the lifetime of the session.
	ID() string
	// Send queues one already-encoded frame for this connection only.
	Send(frame []byte) error
}
