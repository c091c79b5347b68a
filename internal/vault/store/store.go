// Package store persists vault aggregates. The store is where the
// concurrency contract lives: Update grants one operation exclusive access
// to one vault for the duration of its mutation function, so the service
// never needs its own locking and every public operation observes and
// commits vault state atomically.
package store

import (
	"context"

	"github.com/google/uuid"

	"agentvault/internal/vault/models"
)

// UpdateFunc mutates a vault in place. Returning an error aborts the whole
// operation: no mutation becomes visible, matching hard-block semantics.
// The function must not perform I/O or block.
type UpdateFunc func(*models.Vault) error

// VaultStore is the authoritative home of vault state.
type VaultStore interface {
	// Create persists a new vault. Returns sentinel.ErrConflict if the id
	// already exists.
	Create(ctx context.Context, v *models.Vault) error

	// Get returns an independent snapshot of the vault, or
	// sentinel.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Vault, error)

	// Update runs fn with exclusive access to the vault. If fn returns nil
	// the mutated state is committed atomically; if fn returns an error
	// nothing is persisted and the error is returned unchanged.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) error
}
