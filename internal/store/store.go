// Package store persists declaratively registered table definitions so they
// survive restarts. Two implementations exist: a PostgreSQL store for
// deployments with a database, and a single-file JSON store for everything
// else.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a definition is not present in the store.
var ErrNotFound = errors.New("definition not found")

// Definition is one persisted declarative table definition. Spec is the
// raw YAML of the definition subtree, stored untouched so a replay at
// startup goes through exactly the same parsing path as the original
// registration.
type Definition struct {
	ID        uuid.UUID `json:"id"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists declarative table definitions, keyed by namespace and
// name. Save is an upsert; implementations fill in ID and timestamps.
type Store interface {
	// Save inserts or updates a definition. On update, the existing ID
	// and creation time are preserved.
	Save(ctx context.Context, def *Definition) error

	// Delete removes a definition. Returns ErrNotFound if absent.
	Delete(ctx context.Context, namespace, name string) error

	// List returns all persisted definitions, ordered by namespace then
	// name.
	List(ctx context.Context) ([]*Definition, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
