package pubsub_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nfrund/relay/internal/pubsub"
)

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	bus := pubsub.NewWatermillBridge(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan pubsub.Message, 1)
	require.NoError(t, bus.Subscribe(ctx, "relay.test", func(ctx context.Context, msg pubsub.Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, pubsub.Message{
		Topic:    "relay.test",
		UserID:   "u1",
		Payload:  []byte(`{"ok":true}`),
		Metadata: map[string]string{"source": "test"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "relay.test", msg.Topic)
		assert.Equal(t, "u1", msg.UserID)
		assert.JSONEq(t, `{"ok":true}`, string(msg.Payload))
		assert.Equal(t, "test", msg.Metadata["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestWatermillBridge_HandlerErrorDoesNotStopSubscription(t *testing.T) {
	bus := pubsub.NewWatermillBridge(nil)
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "relay.flaky", func(ctx context.Context, msg pubsub.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(ctx, pubsub.Message{Topic: "relay.flaky"}))
	require.NoError(t, bus.Publish(ctx, pubsub.Message{Topic: "relay.flaky"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTypedLifecycleEvents(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	bus := pubsub.NewWatermillBridge(nil, pubsub.WithPublisherMiddleware(func(p message.Publisher) message.Publisher {
		return pubsub.NewTracingPublisher(p, tracer)
	}))
	defer bus.Close()
	ctx := context.Background()

	got := make(chan pubsub.ConnectionEvent, 1)
	require.NoError(t, pubsub.Subscribe(ctx, bus, pubsub.ConnectionOpened, func(ctx context.Context, ev pubsub.ConnectionEvent) error {
		got <- ev
		return nil
	}))

	require.NoError(t, pubsub.Publish(ctx, bus, pubsub.ConnectionOpened, "u1",
		pubsub.ConnectionEvent{ConnID: "c1", UserID: "u1", ServerID: "s1"}))

	select {
	case ev := <-got:
		assert.Equal(t, pubsub.ConnectionEvent{ConnID: "c1", UserID: "u1", ServerID: "s1"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle event was not delivered")
	}
}
