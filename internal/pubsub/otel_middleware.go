package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingPublisher wraps a watermill publisher and records a span per
// published message.
type TracingPublisher struct {
	publisher message.Publisher
	tracer    trace.Tracer
}

// NewTracingPublisher returns a publisher that traces every Publish call.
func NewTracingPublisher(publisher message.Publisher, tracer trace.Tracer) *TracingPublisher {
	return &TracingPublisher{publisher: publisher, tracer: tracer}
}

// Publish starts one span per message, then publishes them all.
func (p *TracingPublisher) Publish(topic string, messages ...*message.Message) error {
	spans := make([]trace.Span, 0, len(messages))
	for _, msg := range messages {
		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		spanCtx, span := p.tracer.Start(ctx, "pubsub.publish."+topic,
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("messaging.system", "watermill"),
				attribute.String("messaging.destination", topic),
				attribute.String("messaging.message_id", msg.UUID),
				attribute.String("user.id", msg.Metadata.Get(metaKeyUserID)),
			),
		)
		msg.SetContext(spanCtx)
		spans = append(spans, span)
	}

	err := p.publisher.Publish(topic, messages...)
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
	return err
}

// Close closes the underlying publisher.
func (p *TracingPublisher) Close() error {
	return p.publisher.Close()
}
