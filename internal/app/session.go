package app

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
)

// State is the lifecycle of one connection:
// Unbound -> Bound(room, identity) -> Terminated.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateTerminated
)

// Session represents one connected client. All inbound events for a
// session arrive from a single dispatcher goroutine (the transport
// read loop); the mutex only guards against a transport double-firing
// disconnect and against reads from other goroutines.
type Session struct {
	ID   core.SessionID
	recv core.Receiver

	mu       sync.Mutex
	state    State
	room     string
	identity string
}

// Binding returns the current state and, when bound, the room/identity
// pair.
func (s *Session) Binding() (State, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.room, s.identity
}

func (s *Session) bind(room, identity string) {
	s.mu.Lock()
	s.state = StateBound
	s.room = room
	s.identity = identity
	s.mu.Unlock()
}

// terminate flips the session to Terminated exactly once and reports
// the binding it had. The second call returns false.
func (s *Session) terminate() (wasBound bool, room, identity string, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false, "", "", false
	}
	wasBound = s.state == StateBound
	room, identity = s.room, s.identity
	s.state = StateTerminated
	return wasBound, room, identity, true
}
