package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refdatahq/lookupd/internal/loader"
	"github.com/refdatahq/lookupd/internal/lookup"
	"github.com/refdatahq/lookupd/internal/store"
)

const plansSpec = `
name: plans
source:
  inline:
    rows:
      - {key: basic, name: Basic, seats: "5"}
      - {key: pro, name: Pro, seats: "50"}
`

// stubCoordinator records forced reload calls.
type stubCoordinator struct {
	reloads      int
	tableReloads []string
	reloadErr    error
}

func (*stubCoordinator) Start(context.Context) error { return nil }
func (*stubCoordinator) Stop() error                 { return nil }
func (*stubCoordinator) Poke()                       {}

func (c *stubCoordinator) Reload(context.Context) error {
	c.reloads++
	return c.reloadErr
}

func (c *stubCoordinator) ReloadTable(_ context.Context, name string) error {
	c.tableReloads = append(c.tableReloads, name)
	return c.reloadErr
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	store.Store
	saveErr error
	pingErr error
}

func (f *failingStore) Save(ctx context.Context, def *store.Definition) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, def)
}

func (f *failingStore) Ping(ctx context.Context) error {
	if f.pingErr != nil {
		return f.pingErr
	}
	return f.Store.Ping(ctx)
}

type serviceFixture struct {
	svc         LookupService
	registry    *loader.Registry
	coordinator *stubCoordinator
	defStore    store.Store
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewFileStore(t.TempDir()))
}

func newFixtureWithStore(t *testing.T, defStore store.Store) *serviceFixture {
	t.Helper()
	registry := loader.NewRegistry()
	coordinator := &stubCoordinator{}
	svc := NewLookupService(registry, coordinator, lookup.NewFactory(), defStore)
	return &serviceFixture{
		svc:         svc,
		registry:    registry,
		coordinator: coordinator,
		defStore:    defStore,
	}
}

func TestRegisterTable(t *testing.T) {
	t.Parallel()

	t.Run("registers, persists, and serves lookups", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)

		detail, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.NoError(t, err)
		assert.Equal(t, "billing.plans", detail.Name)
		assert.Equal(t, "declarative", detail.Kind)
		assert.True(t, detail.Loaded)
		assert.Equal(t, 2, detail.Rows)
		assert.Equal(t, "key", detail.KeyColumn)

		row, err := fix.svc.LookupEntry(t.Context(), "billing.plans", "pro")
		require.NoError(t, err)
		assert.Equal(t, "Pro", row["name"])

		defs, err := fix.defStore.List(t.Context())
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, "billing", defs[0].Namespace)
		assert.Equal(t, "plans", defs[0].Name)
	})

	t.Run("rejects definitions that do not parse", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)

		_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans",
			[]byte("name: plans\nbogusField: true\nsource:\n  inline: {rows: []}\n"))
		require.ErrorIs(t, err, ErrInvalidDefinition)

		defs, err := fix.defStore.List(t.Context())
		require.NoError(t, err)
		assert.Empty(t, defs)
	})

	t.Run("rejects definitions whose data cannot be loaded", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)

		_, err := fix.svc.RegisterTable(t.Context(), "geo", "countries",
			[]byte("name: countries\nsource:\n  file: {path: /nonexistent/countries.csv}\n"))
		require.ErrorIs(t, err, ErrTableNotLoadable)

		_, err = fix.svc.GetTable(t.Context(), "geo.countries")
		require.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("rejects duplicate registrations", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)

		_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.NoError(t, err)
		_, err = fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.ErrorIs(t, err, ErrTableExists)
	})

	t.Run("rolls back registration when persistence fails", func(t *testing.T) {
		t.Parallel()
		failing := &failingStore{
			Store:   store.NewFileStore(t.TempDir()),
			saveErr: errors.New("disk full"),
		}
		fix := newFixtureWithStore(t, failing)

		_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")

		// The table must not linger in the registry.
		_, err = fix.registry.GetDeclarative("billing", "plans")
		require.ErrorIs(t, err, loader.ErrNotFound)
	})
}

func TestUnregisterTable(t *testing.T) {
	t.Parallel()

	t.Run("removes the table and its persisted definition", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)

		_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.NoError(t, err)

		require.NoError(t, fix.svc.UnregisterTable(t.Context(), "billing", "plans"))

		_, err = fix.svc.LookupEntry(t.Context(), "billing.plans", "pro")
		require.ErrorIs(t, err, ErrTableNotFound)

		defs, err := fix.defStore.List(t.Context())
		require.NoError(t, err)
		assert.Empty(t, defs)
	})

	t.Run("unknown table", func(t *testing.T) {
		t.Parallel()
		fix := newFixture(t)
		require.ErrorIs(t, fix.svc.UnregisterTable(t.Context(), "billing", "plans"), ErrTableNotFound)
	})
}

func TestRestoreTables(t *testing.T) {
	t.Parallel()

	t.Run("replays persisted definitions", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		first := newFixtureWithStore(t, store.NewFileStore(dir))
		_, err := first.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
		require.NoError(t, err)

		// Fresh registry, same store: simulates a restart.
		second := newFixtureWithStore(t, store.NewFileStore(dir))
		require.NoError(t, second.svc.RestoreTables(t.Context()))

		row, err := second.svc.LookupEntry(t.Context(), "billing.plans", "basic")
		require.NoError(t, err)
		assert.Equal(t, "Basic", row["name"])
	})

	t.Run("skips definitions that no longer parse and restores the rest", func(t *testing.T) {
		t.Parallel()
		defStore := store.NewFileStore(t.TempDir())
		require.NoError(t, defStore.Save(t.Context(), &store.Definition{
			Namespace: "billing", Name: "plans", Spec: plansSpec,
		}))
		require.NoError(t, defStore.Save(t.Context(), &store.Definition{
			Namespace: "geo", Name: "countries", Spec: "source: [",
		}))

		fix := newFixtureWithStore(t, defStore)
		err := fix.svc.RestoreTables(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "geo/countries")

		_, err = fix.svc.LookupEntry(t.Context(), "billing.plans", "basic")
		require.NoError(t, err)
	})

	t.Run("restores unloadable tables broken", func(t *testing.T) {
		t.Parallel()
		defStore := store.NewFileStore(t.TempDir())
		require.NoError(t, defStore.Save(t.Context(), &store.Definition{
			Namespace: "geo",
			Name:      "countries",
			Spec:      "name: countries\nsource:\n  file: {path: /nonexistent/countries.csv}\n",
		}))

		fix := newFixtureWithStore(t, defStore)
		require.NoError(t, fix.svc.RestoreTables(t.Context()))

		detail, err := fix.svc.GetTable(t.Context(), "geo.countries")
		require.NoError(t, err)
		assert.False(t, detail.Loaded)
		assert.NotEmpty(t, detail.LastError)
	})
}

func TestListAndGetTables(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
	require.NoError(t, err)

	statuses, err := fix.svc.ListTables(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "billing.plans", statuses[0].Name)
	assert.True(t, statuses[0].Loaded)

	detail, err := fix.svc.GetTable(t.Context(), "billing.plans")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Rows)
	assert.NotNil(t, detail.LoadedAt)

	_, err = fix.svc.GetTable(t.Context(), "missing")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestLookupEntry(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	_, err := fix.svc.RegisterTable(t.Context(), "billing", "plans", []byte(plansSpec))
	require.NoError(t, err)

	_, err = fix.svc.LookupEntry(t.Context(), "billing.plans", "enterprise")
	require.ErrorIs(t, err, ErrKeyNotFound)

	_, err = fix.svc.LookupEntry(t.Context(), "missing", "basic")
	require.ErrorIs(t, err, ErrTableNotFound)

	// A registered table whose data never loaded replays its cached
	// creation error, marked as not loadable rather than an opaque failure.
	require.NoError(t, fix.defStore.Save(t.Context(), &store.Definition{
		Namespace: "geo",
		Name:      "countries",
		Spec:      "name: countries\nsource:\n  file: {path: /nonexistent/countries.csv}\n",
	}))
	require.NoError(t, fix.svc.RestoreTables(t.Context()))

	_, err = fix.svc.LookupEntry(t.Context(), "geo.countries", "DE")
	require.ErrorIs(t, err, ErrTableNotLoadable)
	assert.Contains(t, err.Error(), "countries.csv")
}

func TestReloadDelegation(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	require.NoError(t, fix.svc.Reload(t.Context()))
	require.NoError(t, fix.svc.ReloadTable(t.Context(), "countries"))
	assert.Equal(t, 1, fix.coordinator.reloads)
	assert.Equal(t, []string{"countries"}, fix.coordinator.tableReloads)

	fix.coordinator.reloadErr = errors.New("pass failed")
	require.Error(t, fix.svc.Reload(t.Context()))
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	require.NoError(t, fix.svc.CheckReadiness(t.Context()))

	failing := &failingStore{
		Store:   store.NewFileStore(t.TempDir()),
		pingErr: errors.New("database down"),
	}
	fix = newFixtureWithStore(t, failing)
	err := fix.svc.CheckReadiness(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}
