// Package events defines the closed set of events the relay understands,
// one Go type per inbound and outbound variant, and the JSON envelope they
// travel in.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event names.
const (
	DirectMessageEvent   = "directMessage"
	JoinChannelEvent     = "join-channel"
	LeaveChannelEvent    = "leave-channel"
	TypingStartEvent     = "typing-start"
	TypingStopEvent      = "typing-stop"
	SendMessageEvent     = "send-message"
	NewNotificationEvent = "new-notification"
)

// Outbound event names. directMessage and new-notification are relayed
// under their inbound names.
const (
	UserTypingEvent        = "user-typing"
	UserStoppedTypingEvent = "user-stopped-typing"
	NewMessageEvent        = "new-message"
)

// TimestampLayout matches the millisecond ISO-8601 form browsers produce.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in UTC using TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DirectMessage is relayed unchanged to user:<receiverId>.
type DirectMessage struct {
	ID         string          `json:"id"`
	Content    string          `json:"content"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId" validate:"required"`
	CreatedAt  json.RawMessage `json:"createdAt,omitempty"`
}

// TypingUser identifies who is typing.
type TypingUser struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// TypingStart is sent when a user starts typing in a channel.
type TypingStart struct {
	ChannelID string     `json:"channelId" validate:"required"`
	User      TypingUser `json:"user"`
}

// TypingStop is sent when a user stops typing in a channel.
type TypingStop struct {
	ChannelID string `json:"channelId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
}

// MessageUser is the author block of a channel message.
type MessageUser struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

// SendMessage is a channel broadcast request.
type SendMessage struct {
	ChannelID string      `json:"channelId" validate:"required"`
	Content   string      `json:"content"`
	MessageID string      `json:"messageId" validate:"required"`
	User      MessageUser `json:"user"`
}

// Notification targets user:<userId>. It describes the fields the relay
// checks; the delivered payload is the caller's object, see
// EnrichNotification.
type Notification struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"userId" validate:"required"`
	Heading   string          `json:"heading"`
	Message   string          `json:"message"`
	Read      *bool           `json:"read,omitempty"`
	Link      *string         `json:"link"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
}

// EnrichNotification returns the notification object in data with id, read
// and createdAt added when they are absent or null. Every other key,
// including unknown ones and explicit nulls, is kept byte for byte.
func EnrichNotification(data json.RawMessage, now time.Time, newID func() string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: notification is not an object", ErrMalformed)
	}

	if (isAbsent(fields["id"]) || string(fields["id"]) == `""`) && newID != nil {
		fields["id"], _ = json.Marshal(newID())
	}
	if isAbsent(fields["read"]) {
		fields["read"] = json.RawMessage("false")
	}
	if isAbsent(fields["createdAt"]) {
		fields["createdAt"], _ = json.Marshal(Timestamp(now))
	}
	return fields, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// UserTyping is fanned out for typing-start.
type UserTyping struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UserStoppedTyping is fanned out for typing-stop.
type UserStoppedTyping struct {
	UserID string `json:"userId"`
}

// NewMessage is fanned out for send-message.
type NewMessage struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	ChannelID string      `json:"channelId"`
	UserID    string      `json:"userId"`
	User      MessageUser `json:"user"`
	CreatedAt string      `json:"createdAt"`
}
