package topics

import "strings"

// Kind is the prefix of a topic key.
type Kind string

const (
	KindUser    Kind = "user"
	KindServer  Kind = "server"
	KindChannel Kind = "channel"
)

// Key identifies a topic, e.g. "channel:c1".
type Key string

// NewKey joins a kind and an id into a topic key.
func NewKey(kind Kind, id string) Key {
	return Key(string(kind) + ":" + id)
}

// User returns the topic every connection of a user is auto-joined to.
func User(userID string) Key { return NewKey(KindUser, userID) }

// Server returns the topic for a group/server supplied at connect time.
func Server(serverID string) Key { return NewKey(KindServer, serverID) }

// Channel returns the topic for an explicitly joined channel.
func Channel(channelID string) Key { return NewKey(KindChannel, channelID) }

// Kind returns the prefix of the key, or "" if it has none.
func (k Key) Kind() Kind {
	kind, _, ok := strings.Cut(string(k), ":")
	if !ok {
		return ""
	}
	return Kind(kind)
}

// ID returns the part after the prefix.
func (k Key) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

func (k Key) String() string {
	return string(k)
}
