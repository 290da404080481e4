// Package router dispatches inbound events: it looks up the handler for an
// event name, resolves the audience from the topic registry and hands the
// outbound event to the fan-out engine.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nfrund/relay/internal/events"
	"github.com/nfrund/relay/internal/fanout"
	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/topics"
)

// ErrUnknownEvent is returned for event names outside the dispatch table.
var ErrUnknownEvent = errors.New("unknown event")

// Stats counts dispatch outcomes since the router was created.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
}

// Router applies the dispatch table to inbound events.
type Router struct {
	registry *topics.Registry
	fanout   *fanout.Engine
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	dispatched atomic.Int64
	dropped    atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the time source used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator overrides how missing notification ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(r *Router) { r.newID = newID }
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) { r.tracer = tracer }
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a router over registry that delivers through engine.
func New(registry *topics.Registry, engine *fanout.Engine, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		fanout:   engine,
		tracer:   noop.NewTracerProvider().Tracer("relay-router"),
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// Events lists the inbound event names the router accepts.
func Events() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleFrame decodes a raw inbound frame and dispatches it. Any error
// means the frame was dropped; it is never reported back to the sender.
func (r *Router) HandleFrame(ctx context.Context, sender relay.Conn, frame []byte) error {
	env, err := events.Decode(frame)
	if err != nil {
		r.drop(ctx, sender, "", err)
		return err
	}
	return r.Dispatch(ctx, sender, env)
}

// Dispatch validates, resolves and delivers one event from sender.
func (r *Router) Dispatch(ctx context.Context, sender relay.Conn, env events.Envelope) error {
	ctx, span := r.tracer.Start(ctx, "relay.dispatch."+env.Event,
		trace.WithAttributes(
			attribute.String("relay.event", env.Event),
			attribute.String("relay.conn_id", sender.ID()),
			attribute.Int("relay.payload_size_bytes", len(env.Data)),
		),
	)
	defer span.End()

	handler, ok := table[env.Event]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
		r.drop(ctx, sender, env.Event, err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	plan, err := handler(sender, env.Data, Env{Now: r.now(), NewID: r.newID})
	if err != nil {
		r.drop(ctx, sender, env.Event, err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.dispatched.Add(1)

	switch {
	case plan.Join != "":
		r.registry.Join(plan.Join, sender)
		r.logger.DebugContext(ctx, "Joined topic", "topic", plan.Join, "conn_id", sender.ID())
		span.SetAttributes(attribute.String("relay.topic", plan.Join.String()))
		return nil
	case plan.Leave != "":
		r.registry.Leave(plan.Leave, sender)
		r.logger.DebugContext(ctx, "Left topic", "topic", plan.Leave, "conn_id", sender.ID())
		span.SetAttributes(attribute.String("relay.topic", plan.Leave.String()))
		return nil
	}

	var audience []relay.Conn
	if plan.ExcludeSender {
		audience = r.registry.AudienceExcluding(plan.Target, sender)
	} else {
		audience = r.registry.Audience(plan.Target)
	}

	res := r.fanout.Deliver(ctx, audience, plan.Event, plan.Payload)
	r.delivered.Add(int64(res.Delivered))
	r.failed.Add(int64(res.Failed))

	span.SetAttributes(
		attribute.String("relay.topic", plan.Target.String()),
		attribute.Int("relay.audience", len(audience)),
		attribute.Int("relay.delivered", res.Delivered),
	)
	r.logger.DebugContext(ctx, "Dispatched event",
		"event", env.Event,
		"topic", plan.Target,
		"audience", len(audience),
		"delivered", res.Delivered)
	return nil
}

func (r *Router) drop(ctx context.Context, sender relay.Conn, event string, err error) {
	r.dropped.Add(1)
	r.logger.DebugContext(ctx, "Dropping inbound event", "event", event, "conn_id", sender.ID(), "error", err)
}

// Stats returns the dispatch counters.
func (r *Router) Stats() Stats {
	return Stats{
		Dispatched: r.dispatched.Load(),
		Dropped:    r.dropped.Load(),
		Delivered:  r.delivered.Load(),
		Failed:     r.failed.Load(),
	}
}
