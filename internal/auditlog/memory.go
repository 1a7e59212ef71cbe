package auditlog

import (
	"context"
	"sync"
)

// Memory keeps entries in process, for development and tests.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Write(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e.NotificationID]; ok {
		return nil
	}
	m.seen[e.NotificationID] = struct{}{}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
