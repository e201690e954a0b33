package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	s       Session
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(it.expires) {
		delete(m.items, id)
		return nil, ErrNotFound
	}
	s := it.s
	s.Flashes = append([]Flash(nil), it.s.Flashes...)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Flashes = append([]Flash(nil), s.Flashes...)
	cp.dirty = false
	m.items[s.ID] = memoryItem{s: cp, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}
