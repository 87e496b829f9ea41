// Package service provides the business logic for the lookup table API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refdatahq/lookupd/internal/loader"
	"github.com/refdatahq/lookupd/internal/lookup"
	"github.com/refdatahq/lookupd/internal/store"
)

var (
	// ErrTableNotFound is returned when a table is not registered
	ErrTableNotFound = loader.ErrNotFound

	// ErrTableExists is returned when a registration collides with an
	// existing table
	ErrTableExists = loader.ErrAlreadyExists

	// ErrKeyNotFound is returned when a lookup key is absent from a table
	ErrKeyNotFound = lookup.ErrKeyNotFound

	// ErrInvalidDefinition is returned when a submitted definition does
	// not parse or validate
	ErrInvalidDefinition = errors.New("invalid table definition")

	// ErrTableNotLoadable is returned when a submitted definition parses
	// but its data cannot be loaded
	ErrTableNotLoadable = errors.New("table data could not be loaded")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go LookupService

// LookupService defines the operations exposed by the API layer.
type LookupService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// ListTables returns the status of every registered table
	ListTables(ctx context.Context) ([]TableStatus, error)

	// GetTable returns detailed status for one table
	GetTable(ctx context.Context, name string) (*TableDetail, error)

	// LookupEntry returns the row stored under key in the named table
	LookupEntry(ctx context.Context, name, key string) (map[string]string, error)

	// RegisterTable registers a table through the declarative channel and
	// persists its definition. The spec is the raw YAML definition;
	// definitions that fail to parse or load are rejected.
	RegisterTable(ctx context.Context, namespace, name string, spec []byte) (*TableDetail, error)

	// UnregisterTable removes a declaratively registered table and its
	// persisted definition
	UnregisterTable(ctx context.Context, namespace, name string) error

	// RestoreTables replays persisted declarative definitions into the
	// registry, typically at startup
	RestoreTables(ctx context.Context) error

	// Reload forces a synchronous reload pass over all sources
	Reload(ctx context.Context) error

	// ReloadTable forces a reload of one table and fails if it ends the
	// pass without a usable version
	ReloadTable(ctx context.Context, name string) error
}

// lookupService is the default implementation of LookupService.
type lookupService struct {
	registry    *loader.Registry
	coordinator loader.Coordinator
	factory     *lookup.Factory
	defStore    store.Store
}

// NewLookupService creates the service over its collaborators.
func NewLookupService(
	registry *loader.Registry,
	coordinator loader.Coordinator,
	factory *lookup.Factory,
	defStore store.Store,
) LookupService {
	return &lookupService{
		registry:    registry,
		coordinator: coordinator,
		factory:     factory,
		defStore:    defStore,
	}
}

// CheckReadiness verifies the definition store is reachable.
func (s *lookupService) CheckReadiness(ctx context.Context) error {
	if err := s.defStore.Ping(ctx); err != nil {
		return fmt.Errorf("definition store not ready: %w", err)
	}
	return nil
}

// ListTables returns the status of every registered table.
func (s *lookupService) ListTables(_ context.Context) ([]TableStatus, error) {
	snapshot := s.registry.Snapshot()
	statuses := make([]TableStatus, 0, len(snapshot))
	for _, st := range snapshot {
		statuses = append(statuses, newTableStatus(st))
	}
	return statuses, nil
}

// GetTable returns detailed status for one table.
func (s *lookupService) GetTable(_ context.Context, name string) (*TableDetail, error) {
	for _, st := range s.registry.Snapshot() {
		if st.Name != name {
			continue
		}
		detail := &TableDetail{TableStatus: newTableStatus(st)}
		if obj, ok := s.registry.TryGet(name); ok {
			if table, ok := obj.(*lookup.Table); ok {
				detail.KeyColumn = table.KeyColumn()
				detail.Rows = table.Len()
				loadedAt := table.LoadedAt()
				detail.LoadedAt = &loadedAt
			}
		}
		return detail, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

// rowLookup is the read surface a loaded table must provide.
type rowLookup interface {
	Lookup(key string) (map[string]string, error)
}

// LookupEntry returns the row stored under key in the named table. A name
// that is registered but has no usable version replays its cached load
// error as ErrTableNotLoadable.
func (s *lookupService) LookupEntry(_ context.Context, name, key string) (map[string]string, error) {
	obj, err := s.registry.Get(name)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTableNotLoadable, err)
	}
	table, ok := obj.(rowLookup)
	if !ok {
		return nil, fmt.Errorf("table %s does not support lookups", name)
	}
	return table.Lookup(key)
}

// RegisterTable registers a table through the declarative channel. The
// definition must parse, validate, and load before it is accepted; the
// persisted spec is only written once the registry registration succeeded,
// and rolled back if persistence fails.
func (s *lookupService) RegisterTable(
	ctx context.Context, namespace, name string, spec []byte,
) (*TableDetail, error) {
	def, err := parseDefinitionSpec(name, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	table := s.factory.NewTable(ctx, def)
	if cerr := table.CreationError(); cerr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTableNotLoadable, cerr)
	}

	if err := s.registry.AddDeclarative(namespace, name, table); err != nil {
		return nil, err
	}

	if err := s.defStore.Save(ctx, &store.Definition{
		Namespace: namespace,
		Name:      name,
		Spec:      string(spec),
	}); err != nil {
		// Keep registry and store consistent: an unpersisted table would
		// silently vanish on restart.
		_ = s.registry.RemoveDeclarative(namespace, name)
		return nil, fmt.Errorf("failed to persist definition: %w", err)
	}

	slog.Info("Registered declarative table", "namespace", namespace, "name", name)
	return s.GetTable(ctx, loader.QualifiedName(namespace, name))
}

// UnregisterTable removes a declaratively registered table.
func (s *lookupService) UnregisterTable(ctx context.Context, namespace, name string) error {
	if err := s.registry.RemoveDeclarative(namespace, name); err != nil {
		return err
	}
	if err := s.defStore.Delete(ctx, namespace, name); err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("failed to delete persisted definition: %w", err)
	}
	slog.Info("Unregistered declarative table", "namespace", namespace, "name", name)
	return nil
}

// RestoreTables replays persisted declarative definitions. Definitions
// whose data cannot currently be loaded are still registered so their
// error is visible and the refresh loop can recover them; definitions that
// no longer parse are skipped with a logged error.
func (s *lookupService) RestoreTables(ctx context.Context) error {
	defs, err := s.defStore.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persisted definitions: %w", err)
	}

	var errs []error
	for _, def := range defs {
		parsed, err := parseDefinitionSpec(def.Name, []byte(def.Spec))
		if err != nil {
			slog.Error("Skipping persisted definition that no longer parses",
				"namespace", def.Namespace,
				"name", def.Name,
				"error", err)
			errs = append(errs, fmt.Errorf("definition %s/%s: %w", def.Namespace, def.Name, err))
			continue
		}

		table := s.factory.NewTable(ctx, parsed)
		if err := s.registry.AddDeclarative(def.Namespace, def.Name, table); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s/%s: %w", def.Namespace, def.Name, err))
			continue
		}
		if cerr := table.CreationError(); cerr != nil {
			slog.Warn("Restored table is not loadable yet",
				"namespace", def.Namespace,
				"name", def.Name,
				"error", cerr)
		}
	}

	slog.Info("Restored declarative tables", "count", len(defs)-len(errs))
	return errors.Join(errs...)
}

// Reload forces a synchronous reload pass over all sources.
func (s *lookupService) Reload(ctx context.Context) error {
	return s.coordinator.Reload(ctx)
}

// ReloadTable forces a reload of one table.
func (s *lookupService) ReloadTable(ctx context.Context, name string) error {
	return s.coordinator.ReloadTable(ctx, name)
}

// parseDefinitionSpec parses raw YAML into a validated table definition.
func parseDefinitionSpec(name string, spec []byte) (*lookup.TableDefinition, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(spec, &node); err != nil {
		return nil, fmt.Errorf("parsing definition: %w", err)
	}
	return lookup.ParseDefinition(name, &node)
}

// newTableStatus converts a registry snapshot entry to its API shape.
func newTableStatus(st loader.EntryStatus) TableStatus {
	status := TableStatus{
		Name:       st.Name,
		Kind:       string(st.Kind),
		Origin:     st.Origin,
		Loaded:     st.Loaded,
		LastError:  st.LastError,
		RetryCount: st.RetryCount,
	}
	if !st.NextUpdate.IsZero() {
		status.NextUpdate = timePtr(st.NextUpdate)
	}
	if !st.NextAttempt.IsZero() {
		status.NextAttempt = timePtr(st.NextAttempt)
	}
	return status
}

func timePtr(t time.Time) *time.Time {
	return &t
}
