// Package core owns the room table: which identities occupy which
// rooms, and the per-room fan-out of broadcast frames. All mutation
// and delivery for a single room is serialized on that room's lock, so
// every session bound to a room observes the same broadcast order.
// Rooms never block each other.
package core

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Relay/internal/domain"
)

type occupant struct {
	sid  SessionID
	recv Receiver
}

// room exists only while it has occupants. gone marks a room that was
// deleted while a stale pointer to it may still be held.
type room struct {
	mu        sync.Mutex
	gone      bool
	order     []string
	occupants map[string]occupant
}

func newRoom() *room {
	return &room{occupants: make(map[string]occupant)}
}

func (r *room) roster() domain.Roster {
	return append(domain.Roster(nil), r.order...)
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

func (reg *Registry) get(name string) (*room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rm, ok := reg.rooms[name]
	return rm, ok
}

func (reg *Registry) getOrCreate(name string) *room {
	reg.mu.RLock()
	rm, ok := reg.rooms[name]
	reg.mu.RUnlock()
	if ok {
		return rm
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rm, ok = reg.rooms[name]; ok {
		return rm
	}
	rm = newRoom()
	reg.rooms[name] = rm
	return rm
}

// Join adds identity to the room, creating the room if absent, and
// returns the resulting roster in join order. Fails with
// domain.ErrInvalidInput before touching any state, and with
// domain.ErrNameTaken without mutation when the identity is occupied.
func (reg *Registry) Join(roomName, identity string, sid SessionID, recv Receiver) (domain.Roster, error) {
	if err := domain.ValidateJoin(roomName, identity); err != nil {
		return nil, err
	}
	for {
		rm := reg.getOrCreate(roomName)
		rm.mu.Lock()
		if rm.gone {
			// lost the race with the last leaver; the map entry is
			// fresh on the next pass
			rm.mu.Unlock()
			continue
		}
		if _, taken := rm.occupants[identity]; taken {
			rm.mu.Unlock()
			return nil, domain.ErrNameTaken
		}
		rm.occupants[identity] = occupant{sid: sid, recv: recv}
		rm.order = append(rm.order, identity)
		roster := rm.roster()
		rm.mu.Unlock()
		log.Debug().Str("module", "core.registry").Str("room", roomName).Str("identity", identity).Msg("joined")
		return roster, nil
	}
}

// Leave removes identity from the room. Idempotent: a missing room or
// identity is a no-op. The second result is true when the room ceased
// to exist, in which case the roster is nil and no further broadcast
// to it is meaningful.
func (reg *Registry) Leave(roomName, identity string) (domain.Roster, bool) {
	rm, ok := reg.get(roomName)
	if !ok {
		return nil, true
	}
	rm.mu.Lock()
	if rm.gone {
		rm.mu.Unlock()
		return nil, true
	}
	if _, present := rm.occupants[identity]; !present {
		roster := rm.roster()
		rm.mu.Unlock()
		return roster, false
	}
	delete(rm.occupants, identity)
	for i, id := range rm.order {
		if id == identity {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	if len(rm.occupants) == 0 {
		rm.gone = true
		rm.mu.Unlock()
		reg.mu.Lock()
		if reg.rooms[roomName] == rm {
			delete(reg.rooms, roomName)
		}
		reg.mu.Unlock()
		log.Debug().Str("module", "core.registry").Str("room", roomName).Msg("room deleted")
		return nil, true
	}
	roster := rm.roster()
	rm.mu.Unlock()
	log.Debug().Str("module", "core.registry").Str("room", roomName).Str("identity", identity).Msg("left")
	return roster, false
}

// Snapshot returns the current occupants in join order; empty for a
// room that does not exist.
func (reg *Registry) Snapshot(roomName string) domain.Roster {
	rm, ok := reg.get(roomName)
	if !ok {
		return domain.Roster{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.gone {
		return domain.Roster{}
	}
	return rm.roster()
}

// Broadcast fans one frame out to the room under the room's lock.
// Delivery order over a session's channel therefore matches the room's
// operation order. from is skipped unless includeSelf is set; sessions
// whose buffers are full are reported as Dropped, never waited on.
func (reg *Registry) Broadcast(roomName string, from SessionID, includeSelf bool, f Frame) PublishResult {
	rm, ok := reg.get(roomName)
	if !ok {
		return PublishResult{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	res := PublishResult{}
	for _, id := range rm.order {
		occ := rm.occupants[id]
		if occ.sid == from && !includeSelf {
			continue
		}
		if err := occ.recv.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, occ.sid)
			continue
		}
		res.SentTo++
	}
	return res
}

// List reports live rooms with occupant counts, for the read-only API.
func (reg *Registry) List() []RoomInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return lo.MapToSlice(reg.rooms, func(name string, rm *room) RoomInfo {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return RoomInfo{Name: name, Occupants: len(rm.occupants)}
	})
}
