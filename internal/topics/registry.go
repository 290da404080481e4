package topics

import (
	"sync"

	"github.com/nfrund/relay/internal/relay"
)

// Registry maintains topic membership for live connections.
//
// It keeps two indexes under one lock: topic -> members, used for audience
// lookups, and connection -> topics, used to evict a connection on
// disconnect without scanning every topic. Every operation updates both.
type Registry struct {
	mu      sync.RWMutex
	byTopic map[Key]map[string]relay.Conn
	byConn  map[string]map[Key]struct{}
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Topics      int `json:"topics"`
	Connections int `json:"connections"`
	Memberships int `json:"memberships"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTopic: make(map[Key]map[string]relay.Conn),
		byConn:  make(map[string]map[Key]struct{}),
	}
}

// Join adds conn to the topic audience. Joining twice is a no-op.
func (r *Registry) Join(key Key, conn relay.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.byTopic[key]
	if !ok {
		members = make(map[string]relay.Conn)
		r.byTopic[key] = members
	}
	members[conn.ID()] = conn

	joined, ok := r.byConn[conn.ID()]
	if !ok {
		joined = make(map[Key]struct{})
		r.byConn[conn.ID()] = joined
	}
	joined[key] = struct{}{}
}

// Leave removes conn from the topic audience. Leaving a topic the
// connection never joined is a no-op.
func (r *Registry) Leave(key Key, conn relay.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(key, conn.ID())
}

// LeaveAll removes conn from every topic it belongs to and returns the keys
// it was removed from.
func (r *Registry) LeaveAll(conn relay.Conn) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[conn.ID()]
	keys := make([]Key, 0, len(joined))
	for key := range joined {
		keys = append(keys, key)
	}
	for _, key := range keys {
		r.removeLocked(key, conn.ID())
	}
	return keys
}

func (r *Registry) removeLocked(key Key, connID string) {
	if members, ok := r.byTopic[key]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byTopic, key)
		}
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// Audience returns a snapshot of the members of a topic. An unknown topic
// yields an empty slice.
func (r *Registry) Audience(key Key) []relay.Conn {
	return r.AudienceExcluding(key, nil)
}

// AudienceExcluding returns Audience(key) without the given connection.
// The excluded connection does not have to be a member.
func (r *Registry) AudienceExcluding(key Key, exclude relay.Conn) []relay.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byTopic[key]
	audience := make([]relay.Conn, 0, len(members))
	for id, conn := range members {
		if exclude != nil && id == exclude.ID() {
			continue
		}
		audience = append(audience, conn)
	}
	return audience
}

// IsMember reports whether conn currently belongs to the topic.
func (r *Registry) IsMember(key Key, conn relay.Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byTopic[key][conn.ID()]
	return ok
}

// Topics returns the keys conn is currently subscribed to.
func (r *Registry) Topics(conn relay.Conn) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.byConn[conn.ID()]
	keys := make([]Key, 0, len(joined))
	for key := range joined {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns current topic and membership counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Topics: len(r.byTopic), Connections: len(r.byConn)}
	for _, members := range r.byTopic {
		s.Memberships += len(members)
	}
	return s
}
