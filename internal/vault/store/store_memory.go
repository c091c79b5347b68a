package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"agentvault/internal/vault/models"
	"agentvault/pkg/platform/sentinel"
)

// MemoryStore keeps vaults in process memory. Each vault carries its own
// mutex so operations on different vaults never contend; within one vault,
// Update linearizes callers. Mutations run on a scratch clone and are
// swapped in only on success, so a failed UpdateFunc leaves no trace.
type MemoryStore struct {
	mu     sync.RWMutex
	vaults map[uuid.UUID]*memoryEntry
}

type memoryEntry struct {
	mu    sync.Mutex
	vault *models.Vault
}

func NewMemory() *MemoryStore {
	return &MemoryStore{vaults: make(map[uuid.UUID]*memoryEntry)}
}

func (s *MemoryStore) Create(_ context.Context, v *models.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vaults[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.vaults[v.ID] = &memoryEntry{vault: v.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Vault, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.vault.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, fn UpdateFunc) error {
	entry, err := s.entry(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	scratch := entry.vault.Clone()
	if err := fn(scratch); err != nil {
		return err
	}
	entry.vault = scratch
	return nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.vaults[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return entry, nil
}
