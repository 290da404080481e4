package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBridge implements Publisher and Subscriber on top of watermill's
// in-memory GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger *slog.Logger
}

const (
	// Metadata keys used to carry Message fields through watermill.
	metaKeyUserID = "user_id"
	metaKeyTopic  = "topic"
)

// BridgeOption configures a WatermillBridge.
type BridgeOption func(*bridgeOptions)

type bridgeOptions struct {
	bufferSize int64
	wrap       func(message.Publisher) message.Publisher
}

// WithBuffer sets the per-subscriber output buffer.
func WithBuffer(n int64) BridgeOption {
	return func(o *bridgeOptions) { o.bufferSize = n }
}

// WithPublisherMiddleware wraps the underlying publisher, e.g. for tracing.
func WithPublisherMiddleware(wrap func(message.Publisher) message.Publisher) BridgeOption {
	return func(o *bridgeOptions) { o.wrap = wrap }
}

// NewWatermillBridge initializes an in-memory bus.
func NewWatermillBridge(logger *slog.Logger, opts ...BridgeOption) *WatermillBridge {
	if logger == nil {
		logger = slog.Default()
	}
	o := bridgeOptions{bufferSize: 64}
	for _, opt := range opts {
		opt(&o)
	}

	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: o.bufferSize},
		watermill.NewStdLogger(false, false),
	)

	var pub message.Publisher = goChannel
	if o.wrap != nil {
		pub = o.wrap(goChannel)
	}

	return &WatermillBridge{
		pub:    pub,
		sub:    goChannel,
		logger: logger.With("component", "pubsub"),
	}
}

// mapToWatermillMessage converts a Message to a watermill message.
func mapToWatermillMessage(ctx context.Context, msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wmMsg.SetContext(ctx)

	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return wmMsg
}

// mapToPubSubMessage converts a watermill message back to a Message.
func mapToPubSubMessage(wmMsg *message.Message) Message {
	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUserID && k != metaKeyTopic {
			metadata[k] = v
		}
	}
	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		UserID:   wmMsg.Metadata.Get(metaKeyUserID),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements Publisher.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	return wb.pub.Publish(msg.Topic, mapToWatermillMessage(ctx, msg))
}

// Subscribe implements Subscriber. It returns once the subscription is
// active; messages are handled on a background goroutine.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := mapToPubSubMessage(wmMsg)
			if err := handler(wmMsg.Context(), msg); err != nil {
				wb.logger.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				// The in-memory bus has no retry; nacking would redeliver forever.
			}
			wmMsg.Ack()
		}
		wb.logger.Debug("Subscription message loop ended", "topic", topic)
	}()
	return nil
}

// Close shuts down the bus and ends every subscription.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
