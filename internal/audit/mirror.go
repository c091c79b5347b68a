package audit

import (
	"context"
	"sync"

	"agentvault/pkg/platform/sentinel"
)

// Mirror is a content-addressed, write-once blob store. Store is idempotent:
// writing the same content twice returns the same content id.
type Mirror interface {
	// Store persists the entry and returns its content id.
	Store(ctx context.Context, entry Entry) (string, error)
	// Fetch reads an entry back by content id.
	Fetch(ctx context.Context, contentID string) (Entry, error)
}

// MemoryMirror keeps entries in process memory. It backs tests and dev mode
// where no blob store is reachable.
type MemoryMirror struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{entries: make(map[string]Entry)}
}

func (m *MemoryMirror) Store(_ context.Context, entry Entry) (string, error) {
	id, err := contentID(entry)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[id]; !exists {
		m.entries[id] = entry
		m.order = append(m.order, id)
	}
	return id, nil
}

func (m *MemoryMirror) Fetch(_ context.Context, contentID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[contentID]
	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

// Entries returns all stored entries in write order.
func (m *MemoryMirror) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}
