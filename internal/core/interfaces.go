package core

// Frame is one encoded outbound event.
type Frame []byte

type SessionID string

// Receiver is the outbound side of one connected session. Owned by the
// transport adapter; the adapter must close the underlying resource.
// TrySend never blocks: a full buffer is reported as an error.
type Receiver interface {
	TrySend(Frame) error
}

// PublishResult reports delivery stats and backpressure to the broker.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	Name      string `json:"name"`
	Occupants int    `json:"occupants"`
}
