// Package store persists the durable transcript. The broker treats it
// as an append-only log with a range query; live delivery never waits
// on it beyond the configured deadline.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

// TranscriptStore is the append-only log of messages keyed by room.
type TranscriptStore interface {
	// Append persists one immutable record and assigns msg.At. Failures
	// are returned to the caller, never retried here.
	Append(ctx context.Context, msg *domain.Message) error
	// Recent returns up to limit messages for the room in ascending
	// timestamp order, newest window first when the room has more.
	Recent(ctx context.Context, room string, limit int) ([]domain.Message, error)
}

// stamper hands out UTC timestamps that never go backwards, so the
// transcript order for a room matches insertion order even when the
// wall clock steps.
type stamper struct {
	mu   sync.Mutex
	last time.Time
}

func (s *stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}
