// Package presence tracks which identities currently have at least one live
// connection. It learns about connections only from lifecycle events on the
// bus and keeps everything in memory.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/relay/internal/pubsub"
)

// Presence is one live connection of a user.
type Presence struct {
	UserID    string    `json:"user_id"`
	ConnID    string    `json:"conn_id"`
	ServerID  string    `json:"server_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot summarises presence for the stats endpoint.
type Snapshot struct {
	OnlineUsers int `json:"online_users"`
	Connections int `json:"connections"`
}

// Service keeps userID -> connID -> Presence.
type Service struct {
	mu        sync.RWMutex
	presences map[string]map[string]Presence
	// early holds connections whose close was seen before their open; the
	// two topics are consumed by separate goroutines. Entries older than
	// earlyTTL are pruned, so a close whose open never arrives is forgotten.
	early     map[string]time.Time
	logger    *slog.Logger
	now       func() time.Time
}

// earlyTTL bounds how long an unmatched close is remembered.
const earlyTTL = time.Minute

// Option is a function that configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates an empty presence service. Call Start to attach it to
// the bus.
func NewService(opts ...Option) *Service {
	s := &Service{
		presences: make(map[string]map[string]Presence),
		early:     make(map[string]time.Time),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("service", "presence")
	return s
}

// Start subscribes to connection lifecycle events.
func (s *Service) Start(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, sub, pubsub.ConnectionOpened, s.handleOpened); err != nil {
		return err
	}
	if err := pubsub.Subscribe(ctx, sub, pubsub.ConnectionClosed, s.handleClosed); err != nil {
		return err
	}
	s.logger.Info("Presence service subscribed to connection events")
	return nil
}

func (s *Service) handleOpened(_ context.Context, ev pubsub.ConnectionEvent) error {
	if ev.UserID == "" {
		return nil
	}
	s.add(Presence{UserID: ev.UserID, ConnID: ev.ConnID, ServerID: ev.ServerID, Timestamp: s.now()})
	return nil
}

func (s *Service) handleClosed(_ context.Context, ev pubsub.ConnectionEvent) error {
	if ev.UserID == "" {
		return nil
	}
	s.remove(ev.UserID, ev.ConnID)
	return nil
}

func (s *Service) add(p Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	if _, closed := s.early[p.ConnID]; closed {
		delete(s.early, p.ConnID)
		return
	}
	conns, ok := s.presences[p.UserID]
	if !ok {
		conns = make(map[string]Presence)
		s.presences[p.UserID] = conns
		s.logger.Info("User came online", "user_id", p.UserID, "conn_id", p.ConnID)
	}
	conns[p.ConnID] = p
}

func (s *Service) remove(userID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	conns := s.presences[userID]
	if _, ok := conns[connID]; !ok {
		s.early[connID] = s.now()
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(s.presences, userID)
		s.logger.Info("User went offline", "user_id", userID)
	}
}

func (s *Service) pruneLocked() {
	if len(s.early) == 0 {
		return
	}
	cutoff := s.now().Add(-earlyTTL)
	for id, seen := range s.early {
		if seen.Before(cutoff) {
			delete(s.early, id)
		}
	}
}

// IsOnline reports whether userID has at least one live connection.
func (s *Service) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.presences[userID]) > 0
}

// GetPresence returns the most recent connection of a user.
func (s *Service) GetPresence(userID string) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest Presence
	for _, p := range s.presences[userID] {
		if latest.Timestamp.IsZero() || p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	return latest, !latest.Timestamp.IsZero()
}

// OnlineUsers returns the sorted ids of every online user.
func (s *Service) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.presences))
	for id := range s.presences {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Snapshot returns online user and connection counts.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{OnlineUsers: len(s.presences)}
	for _, conns := range s.presences {
		snap.Connections += len(conns)
	}
	return snap
}
