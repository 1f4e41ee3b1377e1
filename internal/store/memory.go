package store

import (
	"context"
	"sync"

	"github.com/dkeye/Relay/internal/domain"
)

// Memory keeps the transcript in process memory. Used when no
// database_dsn is configured and throughout the test suite.
type Memory struct {
	mu     sync.RWMutex
	byRoom map[string][]domain.Message
	stamp  stamper
}

func NewMemory() *Memory {
	return &Memory{byRoom: make(map[string][]domain.Message)}
}

func (m *Memory) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.At = m.stamp.next()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRoom[msg.Room] = append(m.byRoom[msg.Room], *msg)
	return nil
}

func (m *Memory) Recent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byRoom[room]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Message, len(all))
	copy(out, all)
	return out, nil
}
