// Package app drives session lifecycles against the room registry and
// the transcript store. It consumes inbound protocol events and emits
// outbound broadcasts; transport encoding lives in the adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/format"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/store"
)

const (
	DefaultHistoryLimit = 100
	DefaultStoreTimeout = 3 * time.Second
)

// Broker wires inbound transport events to registry operations and
// outbound broadcasts back to the sessions of a room. Transcript
// failures never stall or fail the live path: durability is
// best-effort relative to delivery.
type Broker struct {
	Registry     *core.Registry
	Store        store.TranscriptStore
	Sanitizer    *format.Sanitizer
	Policy       Policy
	HistoryLimit int
	StoreTimeout time.Duration

	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
}

func NewBroker(reg *core.Registry, ts store.TranscriptStore) *Broker {
	return &Broker{
		Registry:     reg,
		Store:        ts,
		Sanitizer:    format.NewSanitizer(),
		Policy:       DropPolicy{},
		HistoryLimit: DefaultHistoryLimit,
		StoreTimeout: DefaultStoreTimeout,
		sessions:     make(map[core.SessionID]*Session),
	}
}

// NewSession registers a fresh Unbound session for one connection.
func (b *Broker) NewSession(recv core.Receiver) *Session {
	s := &Session{ID: core.SessionID(uuid.NewString()), recv: recv}
	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()
	log.Info().Str("module", "app.broker").Str("sid", string(s.ID)).Msg("session created")
	return s
}

func (b *Broker) session(sid core.SessionID) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[sid]
}

func (b *Broker) forget(sid core.SessionID) {
	b.mu.Lock()
	delete(b.sessions, sid)
	b.mu.Unlock()
}

// HandleJoin processes a joinRoom event. Only valid from Unbound; on
// success the session becomes Bound and receives, in order: the join
// acknowledgment, the history replay, its welcome notice, and the
// roster. The rest of the room sees the joined notice and the roster.
func (b *Broker) HandleJoin(s *Session, roomName, identity string) {
	state, _, _ := s.Binding()
	if state != StateUnbound {
		log.Warn().Str("module", "app.broker").Str("sid", string(s.ID)).Msg("join while not unbound")
		b.sendTo(s, Event{Type: EvtJoinError, Reason: ReasonAlreadyJoined})
		return
	}

	roster, err := b.Registry.Join(roomName, identity, s.ID, s.recv)
	if errors.Is(err, domain.ErrInvalidInput) {
		b.sendTo(s, Event{Type: EvtJoinError, Reason: ReasonFieldsRequired})
		return
	}
	if errors.Is(err, domain.ErrNameTaken) {
		b.sendTo(s, Event{Type: EvtJoinError, Reason: ReasonNameTaken})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.broker").Str("sid", string(s.ID)).Msg("join failed")
		b.sendTo(s, Event{Type: EvtJoinError, Reason: ReasonFieldsRequired})
		return
	}
	s.bind(roomName, identity)
	log.Info().Str("module", "app.broker").Str("sid", string(s.ID)).Str("room", roomName).Str("identity", identity).Msg("session bound")

	b.sendTo(s, Event{Type: EvtJoinSuccess})
	b.replayHistory(s, roomName)

	welcome := domain.SystemMessage(roomName, identity, fmt.Sprintf("Welcome %s!", identity))
	b.persist(&welcome)
	b.sendTo(s, Event{Type: EvtMessage, Line: welcome.Body})

	joined := domain.SystemMessage(roomName, identity, fmt.Sprintf("%s has joined the room", identity))
	b.persist(&joined)
	b.broadcast(roomName, s.ID, false, Event{Type: EvtMessage, Line: joined.Body})

	b.broadcast(roomName, s.ID, true, Event{Type: EvtUserList, Users: roster})
}

// HandleChat processes a chatMessage event. The session's bound room
// is authoritative; any room carried by the inbound event is ignored.
// The sanitized body goes to the transcript, the display line is built
// from the raw body: storage integrity and live-display richness are
// separate concerns.
func (b *Broker) HandleChat(s *Session, body string) {
	state, room, identity := s.Binding()
	if state != StateBound {
		log.Warn().Str("module", "app.broker").Str("sid", string(s.ID)).Msg("chat while not bound")
		return
	}
	if strings.TrimSpace(body) == "" {
		return
	}

	msg := domain.UserMessage(room, identity, b.Sanitizer.Sanitize(body))
	b.persist(&msg)

	line := format.ChatLine(msg.At, identity, format.Format(body))
	b.broadcast(room, s.ID, true, Event{Type: EvtMessage, Line: line})
	metrics.MessagesTotal.Inc()
}

// HandleTyping relays an ephemeral typing notice to everyone else in
// the room. Nothing is persisted and nothing is debounced here; the
// client clears its own indicator after an idle window.
func (b *Broker) HandleTyping(s *Session) {
	state, room, identity := s.Binding()
	if state != StateBound {
		return
	}
	b.broadcast(room, s.ID, false, Event{Type: EvtTyping, Identity: identity})
}

func (b *Broker) HandleStopTyping(s *Session) {
	state, room, _ := s.Binding()
	if state != StateBound {
		return
	}
	b.broadcast(room, s.ID, false, Event{Type: EvtStopTyping})
}

// HandleDisconnect removes the session from its room and notifies the
// remaining occupants. Safe to call more than once: the transport may
// double-fire close events, only the first one acts.
func (b *Broker) HandleDisconnect(s *Session) {
	wasBound, room, identity, first := s.terminate()
	b.forget(s.ID)
	if !first || !wasBound {
		return
	}

	roster, gone := b.Registry.Leave(room, identity)
	log.Info().Str("module", "app.broker").Str("sid", string(s.ID)).Str("room", room).Bool("room_gone", gone).Msg("session terminated")
	if gone {
		return
	}

	left := domain.SystemMessage(room, identity, fmt.Sprintf("%s has left the room", identity))
	b.persist(&left)
	b.broadcast(room, s.ID, true, Event{Type: EvtMessage, Line: left.Body})
	b.broadcast(room, s.ID, true, Event{Type: EvtUserList, Users: roster})
}

// replayHistory sends the most recent transcript window to the joiner
// only, oldest first. A store failure skips the replay; the join has
// already succeeded.
func (b *Broker) replayHistory(s *Session, room string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.StoreTimeout)
	defer cancel()
	msgs, err := b.Store.Recent(ctx, room, b.HistoryLimit)
	if err != nil {
		metrics.TranscriptFailures.Inc()
		log.Warn().Err(err).Str("module", "app.broker").Str("room", room).Msg("history replay skipped")
		return
	}
	for _, m := range msgs {
		var line string
		if m.Kind == domain.KindSystem {
			line = format.NoticeLine(m.At, m.Body)
		} else {
			line = format.ChatLine(m.At, m.Sender, m.Body)
		}
		b.sendTo(s, Event{Type: EvtMessage, Line: line})
	}
}

// persist appends one transcript record under a deadline. On failure
// the message still gets a timestamp so the display line can be built.
func (b *Broker) persist(msg *domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.StoreTimeout)
	defer cancel()
	if err := b.Store.Append(ctx, msg); err != nil {
		metrics.TranscriptFailures.Inc()
		log.Error().Err(err).Str("module", "app.broker").Str("room", msg.Room).Msg("transcript append")
		if msg.At.IsZero() {
			msg.At = time.Now().UTC()
		}
	}
}

func (b *Broker) sendTo(s *Session, e Event) {
	f, ok := encode(e)
	if !ok {
		return
	}
	if err := s.recv.TrySend(f); err != nil {
		metrics.DroppedFrames.Inc()
		log.Warn().Err(err).Str("module", "app.broker").Str("sid", string(s.ID)).Msg("direct send dropped")
	}
}

func (b *Broker) broadcast(room string, from core.SessionID, includeSelf bool, e Event) {
	f, ok := encode(e)
	if !ok {
		return
	}
	res := b.Registry.Broadcast(room, from, includeSelf, f)
	if len(res.Dropped) == 0 {
		return
	}
	metrics.DroppedFrames.Add(float64(len(res.Dropped)))
	sids := lo.Map(res.Dropped, func(sid core.SessionID, _ int) string { return string(sid) })
	log.Warn().Str("module", "app.broker").Str("room", room).Strs("sids", sids).Msg("broadcast dropped frames")
	for _, sid := range res.Dropped {
		if b.Policy.OnBackpressure(room, sid) == KickSession {
			if victim := b.session(sid); victim != nil {
				b.HandleDisconnect(victim)
			}
		}
	}
}
