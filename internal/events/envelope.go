package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformed is returned for frames or payloads that cannot be decoded.
	ErrMalformed = errors.New("malformed event")
	// ErrIncomplete is returned when a required field is missing or empty.
	ErrIncomplete = errors.New("incomplete event payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload in an envelope tagged with event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses one inbound frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}

// Parse decodes data into T and checks its required fields.
func Parse[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("%w: no payload", ErrIncomplete)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	return v, nil
}

// ParseChannelID decodes the bare string payload of join-channel and
// leave-channel.
func ParseChannelID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Var(id, "required"); err != nil {
		return "", fmt.Errorf("%w: channel id", ErrIncomplete)
	}
	return id, nil
}
