package domain

import "time"

type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// Message is one immutable transcript entry. Sender is a denormalized
// display name so history survives disconnects. At is assigned by the
// transcript store when the message is persisted.
type Message struct {
	Room   string
	Sender string
	Body   string
	Kind   MessageKind
	At     time.Time
}

// SystemMessage builds a server-generated notice for a room.
func SystemMessage(room, sender, body string) Message {
	return Message{Room: room, Sender: sender, Body: body, Kind: KindSystem}
}

// UserMessage builds a user-authored chat entry for a room.
func UserMessage(room, sender, body string) Message {
	return Message{Room: room, Sender: sender, Body: body, Kind: KindUser}
}
