// Package dedup provides message de-duplication stores used by consumers
// to skip redeliveries of already-processed messages. De-duplication is an
// optimization on top of idempotent handlers, not a correctness mechanism:
// entries expire, and a handler must still tolerate the occasional replay.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Store records which message IDs have been processed.
type Store interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Close() error
}

// Memory is an in-process Store with TTL-based expiry.
type Memory struct {
	mu      sync.RWMutex
	seen    map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewMemory creates an in-memory store whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// IsProcessed reports whether messageID was marked within the TTL window.
func (m *Memory) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	m.mu.RLock()
	at, ok := m.seen[messageID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if m.nowFunc().Sub(at) > m.ttl {
		m.mu.Lock()
		delete(m.seen, messageID)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// MarkProcessed records messageID.
func (m *Memory) MarkProcessed(ctx context.Context, messageID string) error {
	m.mu.Lock()
	m.seen[messageID] = m.nowFunc()
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
