package pubsub

// ConnectionEvent describes one connection opening or closing.
type ConnectionEvent struct {
	ConnID   string `json:"conn_id"`
	UserID   string `json:"user_id,omitempty"`
	ServerID string `json:"server_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

var (
	// ConnectionOpened is published after a connection registered its identity.
	ConnectionOpened = NewEvent[ConnectionEvent]("relay.connection.opened")
	// ConnectionClosed is published after a connection was fully evicted.
	ConnectionClosed = NewEvent[ConnectionEvent]("relay.connection.closed")
)
