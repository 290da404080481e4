// Package websocket is the transport substrate of the relay: it upgrades
// HTTP requests, owns the read and write loops of each connection and
// drives the Connecting -> Open -> Closed lifecycle.
package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/router"
	"github.com/nfrund/relay/internal/session"
)

// Query parameters read at connect time.
const (
	QueryUserID   = "userId"
	QueryServerID = "serverId"
)

// Defaults used when Dependencies leaves a setting at zero.
const (
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 25 * time.Second
	DefaultReadLimit    = 64 << 10
)

// Dependencies holds what the bridge needs to serve connections.
type Dependencies struct {
	Directory *session.Directory
	Router    *router.Router
	Publisher pubsub.Publisher
	Logger    *slog.Logger

	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

// Bridge accepts websocket connections and connects them to the router.
type Bridge struct {
	deps   Dependencies
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*Client
	closing bool
	wg      sync.WaitGroup
}

// NewBridge initializes a bridge, ready to handle connections.
func NewBridge(deps Dependencies) *Bridge {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SendBuffer <= 0 {
		deps.SendBuffer = DefaultSendBuffer
	}
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = DefaultWriteTimeout
	}
	if deps.PingInterval <= 0 {
		deps.PingInterval = DefaultPingInterval
	}
	if deps.ReadLimit <= 0 {
		deps.ReadLimit = DefaultReadLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		deps:    deps,
		logger:  deps.Logger.With("component", "websocket"),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*Client),
	}
}

// Handler returns an echo.HandlerFunc that upgrades the request. Admission
// has already run as route middleware by the time it is called. The
// handler blocks until the connection closes.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := session.Identity{
			UserID:   c.QueryParam(QueryUserID),
			ServerID: c.QueryParam(QueryServerID),
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			// Origin is checked by the admission gate before we get here.
			InsecureSkipVerify: true,
		})
		if err != nil {
			b.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return nil
		}
		conn.SetReadLimit(b.deps.ReadLimit)

		client := newClient(uuid.NewString(), identity, conn, b.deps.SendBuffer, b.logger)
		if !b.open(client) {
			conn.Close(websocket.StatusGoingAway, "Server shutting down")
			return nil
		}
		defer b.wg.Done()

		ctx, cancel := context.WithCancel(b.ctx)
		defer cancel()

		go b.writePump(ctx, client)
		reason := b.readPump(ctx, client)
		b.closeClient(client, reason)
		return nil
	}
}

// open registers the client and announces it. It fails once Shutdown has
// started.
func (b *Bridge) open(client *Client) bool {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return false
	}
	b.clients[client.id] = client
	b.wg.Add(1)
	b.mu.Unlock()

	b.deps.Directory.Register(client, client.identity)
	client.logger.Debug("Client connected", "server_id", client.identity.ServerID)
	b.publish(pubsub.ConnectionOpened, client, "")
	return true
}

// closeClient runs exactly once per client, after its read loop ended.
func (b *Bridge) closeClient(client *Client, reason string) {
	b.deps.Directory.Unregister(client)
	client.shutdown()

	b.mu.Lock()
	delete(b.clients, client.id)
	b.mu.Unlock()

	client.conn.Close(websocket.StatusNormalClosure, "")
	client.logger.Debug("Client disconnected", "reason", reason)
	b.publish(pubsub.ConnectionClosed, client, reason)
}

func (b *Bridge) publish(event pubsub.Event[pubsub.ConnectionEvent], client *Client, reason string) {
	if b.deps.Publisher == nil {
		return
	}
	ev := pubsub.ConnectionEvent{
		ConnID:   client.id,
		UserID:   client.identity.UserID,
		ServerID: client.identity.ServerID,
		Reason:   reason,
	}
	if err := pubsub.Publish(context.Background(), b.deps.Publisher, event, client.identity.UserID, ev); err != nil {
		b.logger.Error("Failed to publish connection event", "topic", event.Name(), "conn_id", client.id, "error", err)
	}
}

// readPump handles inbound frames one at a time, in order, until the
// connection fails. It returns a short reason for logging.
func (b *Bridge) readPump(ctx context.Context, client *Client) string {
	for {
		_, frame, err := client.conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				return "client closed"
			case errors.Is(err, context.Canceled):
				return "server shutdown"
			case errors.Is(err, io.EOF):
				return "eof"
			default:
				client.logger.Debug("WebSocket read error", "error", err)
				return "read error"
			}
		}
		// Errors are already logged by the router; nothing goes back to the client.
		_ = b.deps.Router.HandleFrame(ctx, client, frame)
	}
}

// writePump drains the client's queue onto the socket and keeps the
// connection alive with pings.
func (b *Bridge) writePump(ctx context.Context, client *Client) {
	ticker := time.NewTicker(b.deps.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, b.deps.WriteTimeout)
			err := client.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				client.logger.Warn("WebSocket write error", "error", err)
				client.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, b.deps.WriteTimeout)
			err := client.conn.Ping(pctx)
			cancel()
			if err != nil {
				client.logger.Debug("WebSocket ping failed", "error", err)
				client.conn.Close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Count returns the number of open connections.
func (b *Bridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Shutdown sends a going-away close to every connection and waits for
// their cleanup. When ctx expires first the remaining connections are
// dropped without a handshake.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		go c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.cancel()
		b.logger.Info("All websocket connections closed", "count", len(clients))
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}
