package router

import (
	"encoding/json"
	"time"

	"github.com/nfrund/relay/internal/events"
	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/topics"
)

// Plan is what a handler decides for one inbound event. A handler either
// mutates the sender's membership (Join/Leave) or describes a delivery
// (Target, Event, Payload). Handlers never touch the registry or the
// network themselves.
type Plan struct {
	Join  topics.Key
	Leave topics.Key

	Target        topics.Key
	ExcludeSender bool
	Event         string
	Payload       any
}

// Env carries the server-side values handlers may use for enrichment.
type Env struct {
	Now   time.Time
	NewID func() string
}

// Handler turns an inbound payload into a Plan. Returning an error drops
// the event.
type Handler func(sender relay.Conn, data json.RawMessage, env Env) (Plan, error)

// table is the complete set of inbound events the relay accepts.
var table = map[string]Handler{
	events.DirectMessageEvent:   handleDirectMessage,
	events.JoinChannelEvent:     handleJoinChannel,
	events.LeaveChannelEvent:    handleLeaveChannel,
	events.TypingStartEvent:     handleTypingStart,
	events.TypingStopEvent:      handleTypingStop,
	events.SendMessageEvent:     handleSendMessage,
	events.NewNotificationEvent: handleNewNotification,
}

func handleDirectMessage(_ relay.Conn, data json.RawMessage, _ Env) (Plan, error) {
	msg, err := events.Parse[events.DirectMessage](data)
	if err != nil {
		return Plan{}, err
	}
	// Relayed as received, including fields the relay does not know about.
	return Plan{
		Target:  topics.User(msg.ReceiverID),
		Event:   events.DirectMessageEvent,
		Payload: data,
	}, nil
}

func handleJoinChannel(_ relay.Conn, data json.RawMessage, _ Env) (Plan, error) {
	id, err := events.ParseChannelID(data)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Join: topics.Channel(id)}, nil
}

func handleLeaveChannel(_ relay.Conn, data json.RawMessage, _ Env) (Plan, error) {
	id, err := events.ParseChannelID(data)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Leave: topics.Channel(id)}, nil
}

func handleTypingStart(_ relay.Conn, data json.RawMessage, _ Env) (Plan, error) {
	in, err := events.Parse[events.TypingStart](data)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Target:        topics.Channel(in.ChannelID),
		ExcludeSender: true,
		Event:         events.UserTypingEvent,
		Payload:       events.UserTyping{UserID: in.User.ID, Username: in.User.Name},
	}, nil
}

func handleTypingStop(_ relay.Conn, data json.RawMessage, _ Env) (Plan, error) {
	in, err := events.Parse[events.TypingStop](data)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Target:        topics.Channel(in.ChannelID),
		ExcludeSender: true,
		Event:         events.UserStoppedTypingEvent,
		Payload:       events.UserStoppedTyping{UserID: in.UserID},
	}, nil
}

func handleSendMessage(_ relay.Conn, data json.RawMessage, env Env) (Plan, error) {
	in, err := events.Parse[events.SendMessage](data)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Target: topics.Channel(in.ChannelID),
		Event:  events.NewMessageEvent,
		Payload: events.NewMessage{
			ID:        in.MessageID,
			Content:   in.Content,
			ChannelID: in.ChannelID,
			UserID:    in.User.ID,
			User:      in.User,
			CreatedAt: events.Timestamp(env.Now),
		},
	}, nil
}

func handleNewNotification(_ relay.Conn, data json.RawMessage, env Env) (Plan, error) {
	n, err := events.Parse[events.Notification](data)
	if err != nil {
		return Plan{}, err
	}
	enriched, err := events.EnrichNotification(data, env.Now, env.NewID)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Target:  topics.User(n.UserID),
		Event:   events.NewNotificationEvent,
		Payload: enriched,
	}, nil
}
