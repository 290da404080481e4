// Package session binds live connections to the identity they declared at
// connect time and to the topics that identity implies.
package session

import (
	"log/slog"
	"sync"

	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/topics"
)

// Identity is the optional userId/serverId pair supplied when a connection
// is established. Either field may be empty.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	ServerID string `json:"server_id,omitempty"`
}

// Directory maps connections to identities. Several connections may share
// a user id; all of them receive events addressed to that user.
type Directory struct {
	registry *topics.Registry
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]entry
	users map[string]map[string]struct{} // userID -> set of connection ids
}

type entry struct {
	conn     relay.Conn
	identity Identity
}

// NewDirectory creates a directory that records implicit joins in registry.
func NewDirectory(registry *topics.Registry, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		registry: registry,
		logger:   logger.With("component", "session"),
		conns:    make(map[string]entry),
		users:    make(map[string]map[string]struct{}),
	}
}

// Register records the identity of a newly opened connection and auto-joins
// user:<userId> and server:<serverId> for whichever ids are present.
func (d *Directory) Register(conn relay.Conn, id Identity) {
	d.mu.Lock()
	d.conns[conn.ID()] = entry{conn: conn, identity: id}
	if id.UserID != "" {
		if _, ok := d.users[id.UserID]; !ok {
			d.users[id.UserID] = make(map[string]struct{})
		}
		d.users[id.UserID][conn.ID()] = struct{}{}
	}
	d.mu.Unlock()

	if id.UserID != "" {
		d.registry.Join(topics.User(id.UserID), conn)
		d.logger.Info("User connected", "user_id", id.UserID, "conn_id", conn.ID())
	}
	if id.ServerID != "" {
		d.registry.Join(topics.Server(id.ServerID), conn)
	}
}

// Unregister evicts every membership of conn and forgets its identity.
// Calling it for an unknown or already removed connection is a no-op.
func (d *Directory) Unregister(conn relay.Conn) {
	d.mu.Lock()
	e, ok := d.conns[conn.ID()]
	if ok {
		delete(d.conns, conn.ID())
		if uid := e.identity.UserID; uid != "" {
			delete(d.users[uid], conn.ID())
			if len(d.users[uid]) == 0 {
				delete(d.users, uid)
			}
		}
	}
	d.mu.Unlock()

	left := d.registry.LeaveAll(conn)
	if ok && e.identity.UserID != "" {
		d.logger.Info("User disconnected", "user_id", e.identity.UserID, "conn_id", conn.ID(), "topics_left", len(left))
	}
}

// Lookup returns the identity bound to a connection id.
func (d *Directory) Lookup(connID string) (Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.conns[connID]
	return e.identity, ok
}

// ConnectionsFor returns every live connection registered for userID.
func (d *Directory) ConnectionsFor(userID string) []relay.Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.users[userID]
	out := make([]relay.Conn, 0, len(ids))
	for id := range ids {
		out = append(out, d.conns[id].conn)
	}
	return out
}

// Count returns the number of registered connections.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
