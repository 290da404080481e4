// Package fanout delivers one outbound event to every member of an audience.
package fanout

import (
	"context"
	"log/slog"

	"github.com/nfrund/relay/internal/events"
	"github.com/nfrund/relay/internal/relay"
)

// Result reports the outcome of a single Deliver call.
type Result struct {
	Delivered int
	Failed    int
}

// Engine encodes an event once and hands the frame to each recipient.
// A failing recipient is logged and skipped; it never affects the others.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a fan-out engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "fanout")}
}

// Deliver sends payload tagged with event to every connection in audience.
// An empty audience is a no-op.
func (e *Engine) Deliver(ctx context.Context, audience []relay.Conn, event string, payload any) Result {
	var res Result
	if len(audience) == 0 {
		e.logger.DebugContext(ctx, "No recipients for event", "event", event)
		return res
	}

	frame, err := events.Encode(event, payload)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to encode outbound event", "event", event, "error", err)
		res.Failed = len(audience)
		return res
	}

	for _, conn := range audience {
		if err := conn.Send(frame); err != nil {
			res.Failed++
			e.logger.WarnContext(ctx, "Dropping event for recipient", "event", event, "conn_id", conn.ID(), "error", err)
			continue
		}
		res.Delivered++
	}
	return res
}
