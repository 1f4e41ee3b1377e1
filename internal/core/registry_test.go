package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/domain"
)

type recvStub struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recvStub) TrySend(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recvStub) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = string(f)
	}
	return out
}

func TestRegistry_Join_ReturnsRosterInJoinOrder(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("room1", "alice", "s1", &recvStub{})
	req.NoError(err)
	roster, err := reg.Join("room1", "bob", "s2", &recvStub{})
	req.NoError(err)

	req.Equal(domain.Roster{"alice", "bob"}, roster)
	req.Equal(domain.Roster{"alice", "bob"}, reg.Snapshot("room1"))
}

func TestRegistry_Join_DuplicateIdentityRejected(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("room1", "alice", "s1", &recvStub{})
	req.NoError(err)

	_, err = reg.Join("room1", "alice", "s2", &recvStub{})
	req.ErrorIs(err, domain.ErrNameTaken)
	req.Len(reg.Snapshot("room1"), 1)
}

func TestRegistry_Join_SameIdentityDifferentRooms(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("room1", "alice", "s1", &recvStub{})
	req.NoError(err)
	_, err = reg.Join("room2", "alice", "s2", &recvStub{})
	req.NoError(err)
}

func TestRegistry_Join_EmptyFieldsRejectedBeforeState(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("", "alice", "s1", &recvStub{})
	req.ErrorIs(err, domain.ErrInvalidInput)
	_, err = reg.Join("room1", "", "s1", &recvStub{})
	req.ErrorIs(err, domain.ErrInvalidInput)

	// neither call may have created a room
	req.Empty(reg.List())
}

func TestRegistry_Leave_LastOccupantDeletesRoom(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("r", "a", "s1", &recvStub{})
	req.NoError(err)

	roster, gone := reg.Leave("r", "a")
	req.True(gone)
	req.Nil(roster)
	req.Empty(reg.Snapshot("r"))

	// re-join sees a fresh room
	roster, err = reg.Join("r", "a", "s1", &recvStub{})
	req.NoError(err)
	req.Equal(domain.Roster{"a"}, roster)
}

func TestRegistry_Leave_Idempotent(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("r", "a", "s1", &recvStub{})
	req.NoError(err)
	_, err = reg.Join("r", "b", "s2", &recvStub{})
	req.NoError(err)

	roster, gone := reg.Leave("r", "ghost")
	req.False(gone)
	req.Equal(domain.Roster{"a", "b"}, roster)

	roster, gone = reg.Leave("r", "a")
	req.False(gone)
	req.Equal(domain.Roster{"b"}, roster)

	// leaving again must not touch b
	roster, gone = reg.Leave("r", "a")
	req.False(gone)
	req.Equal(domain.Roster{"b"}, roster)

	_, gone = reg.Leave("missing", "a")
	req.True(gone)
}

func TestRegistry_Broadcast_ScopeAndCounts(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	a, b := &recvStub{}, &recvStub{}

	_, err := reg.Join("r", "a", "sa", a)
	req.NoError(err)
	_, err = reg.Join("r", "b", "sb", b)
	req.NoError(err)

	res := reg.Broadcast("r", "sa", false, Frame("hi"))
	req.Equal(1, res.SentTo)
	req.Empty(a.lines())
	req.Equal([]string{"hi"}, b.lines())

	res = reg.Broadcast("r", "sa", true, Frame("all"))
	req.Equal(2, res.SentTo)
	req.Equal([]string{"all"}, a.lines())
}

func TestRegistry_Broadcast_ReportsDropped(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	_, err := reg.Join("r", "a", "sa", failingRecv{})
	req.NoError(err)

	res := reg.Broadcast("r", "", true, Frame("x"))
	req.Zero(res.SentTo)
	req.Equal([]SessionID{"sa"}, res.Dropped)
}

type failingRecv struct{}

func (failingRecv) TrySend(Frame) error { return fmt.Errorf("full") }

func TestRegistry_UniquenessUnderConcurrentJoins(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Join("r", "alice", SessionID(fmt.Sprintf("s%d", i)), &recvStub{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			req.ErrorIs(err, domain.ErrNameTaken)
		}
	}
	req.Equal(1, succeeded)
	req.Equal(domain.Roster{"alice"}, reg.Snapshot("r"))
}

func TestRegistry_BroadcastOrderIdenticalAcrossObservers(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	a, b := &recvStub{}, &recvStub{}

	_, err := reg.Join("r", "a", "sa", a)
	req.NoError(err)
	_, err = reg.Join("r", "b", "sb", b)
	req.NoError(err)

	const senders = 8
	const perSender = 50
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				reg.Broadcast("r", "", true, Frame(fmt.Sprintf("%d-%d", s, i)))
			}
		}(s)
	}
	wg.Wait()

	req.Len(a.lines(), senders*perSender)
	req.Equal(a.lines(), b.lines())
}

func TestRegistry_ConcurrentJoinLeaveChurn(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	// hammer create/delete of the same room; occupants must never leak
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("user%d", w)
			for i := 0; i < 100; i++ {
				if _, err := reg.Join("churn", id, SessionID(id), &recvStub{}); err == nil {
					reg.Leave("churn", id)
				}
			}
		}(w)
	}
	wg.Wait()
	req.Empty(reg.Snapshot("churn"))
}
