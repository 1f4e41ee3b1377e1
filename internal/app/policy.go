package app

import "github.com/dkeye/Relay/internal/core"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickSession
)

// Policy decides what happens to a session whose outbound buffer was
// full during a room broadcast.
type Policy interface {
	OnBackpressure(room string, sid core.SessionID) BackpressureAction
}

// DropPolicy drops the frame and keeps the session. Slow consumers
// lose broadcasts rather than stall the room.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(room string, sid core.SessionID) BackpressureAction {
	return DropFrame
}

// KickPolicy evicts sessions that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackpressure(room string, sid core.SessionID) BackpressureAction {
	return KickSession
}
