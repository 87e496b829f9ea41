package loader

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable is a hand-rolled Loadable for registry tests. Instances are
// immutable after construction, matching the Loadable contract; Clone
// returns the preconfigured next version or a copy of itself.
type fakeTable struct {
	name        string
	creationErr error
	lifetime    Lifetime
	updatable   bool
	modified    bool
	next        Loadable
	cloneCount  *atomic.Int32
}

func (f *fakeTable) Name() string                    { return f.name }
func (f *fakeTable) CreationError() error            { return f.creationErr }
func (f *fakeTable) Lifetime() Lifetime              { return f.lifetime }
func (f *fakeTable) SupportsUpdates() bool           { return f.updatable }
func (f *fakeTable) IsModified(context.Context) bool { return f.modified }

func (f *fakeTable) Clone(context.Context) Loadable {
	if f.cloneCount != nil {
		f.cloneCount.Add(1)
	}
	if f.next != nil {
		return f.next
	}
	clone := *f
	return &clone
}

func newTestRegistry(opts ...RegistryOption) *Registry {
	base := []RegistryOption{WithRandSource(rand.NewPCG(42, 42))}
	return NewRegistry(append(base, opts...)...)
}

func TestRegistry_GetNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, ok := r.TryGet("missing")
	assert.False(t, ok)
}

func TestRegistry_UpsertAndGet(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	obj := &fakeTable{name: "currencies"}

	r.Upsert("currencies", "defs.yaml", obj, time.Now())

	got, err := r.Get("currencies")
	require.NoError(t, err)
	assert.Same(t, obj, got.(*fakeTable))

	got2, ok := r.TryGet("currencies")
	require.True(t, ok)
	assert.Same(t, obj, got2.(*fakeTable))
}

func TestRegistry_UpsertBrokenWithoutFallback(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(WithBackoff(5*time.Second, 10*time.Minute))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	loadErr := errors.New("csv: malformed header")
	broken := &fakeTable{name: "countries", creationErr: loadErr}

	r.Upsert("countries", "defs.yaml", broken, now)

	// The name is visible but lookups replay the load failure.
	_, err := r.Get("countries")
	require.ErrorIs(t, err, loadErr)

	_, ok := r.TryGet("countries")
	assert.False(t, ok)

	// The first retry is scheduled exactly one initial backoff out.
	statuses := r.Snapshot()
	require.Len(t, statuses, 1)
	assert.Equal(t, "countries", statuses[0].Name)
	assert.False(t, statuses[0].Loaded)
	assert.Equal(t, loadErr.Error(), statuses[0].LastError)
	assert.Equal(t, 0, statuses[0].RetryCount)
	assert.Equal(t, now.Add(5*time.Second), statuses[0].NextAttempt)
}

func TestRegistry_UpsertBrokenKeepsPreviousVersion(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	now := time.Now()
	good := &fakeTable{name: "countries"}
	r.Upsert("countries", "defs.yaml", good, now)

	loadErr := errors.New("file vanished")
	r.Upsert("countries", "defs.yaml", &fakeTable{name: "countries", creationErr: loadErr}, now)

	// The previous usable version keeps serving.
	got, err := r.Get("countries")
	require.NoError(t, err)
	assert.Same(t, good, got.(*fakeTable))

	// The failure is still recorded for inspection, but no retry state
	// exists: the next source scan supersedes it anyway.
	statuses := r.Snapshot()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Loaded)
	assert.Equal(t, loadErr.Error(), statuses[0].LastError)
	assert.True(t, statuses[0].NextAttempt.IsZero())
}

func TestRegistry_Declarative(t *testing.T) {
	t.Parallel()

	t.Run("add and resolve by qualified name", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		obj := &fakeTable{name: "rates"}
		require.NoError(t, r.AddDeclarative("fx", "rates", obj))

		got, err := r.GetDeclarative("fx", "rates")
		require.NoError(t, err)
		assert.Same(t, obj, got.(*fakeTable))

		// Plain lookups resolve the qualified form too.
		got, err = r.Get("fx.rates")
		require.NoError(t, err)
		assert.Same(t, obj, got.(*fakeTable))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		require.NoError(t, r.AddDeclarative("fx", "rates", &fakeTable{name: "rates"}))
		err := r.AddDeclarative("fx", "rates", &fakeTable{name: "rates"})
		require.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("collision with source entry fails", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		r.Upsert("fx.rates", "defs.yaml", &fakeTable{name: "fx.rates"}, time.Now())

		err := r.AddDeclarative("fx", "rates", &fakeTable{name: "rates"})
		require.ErrorIs(t, err, ErrAlreadyExists)
		assert.Contains(t, err.Error(), "defs.yaml")
	})

	t.Run("broken object registers with replayed error", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		loadErr := errors.New("bad spec")
		require.NoError(t, r.AddDeclarative("fx", "rates", &fakeTable{name: "rates", creationErr: loadErr}))

		_, err := r.GetDeclarative("fx", "rates")
		require.ErrorIs(t, err, loadErr)
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		require.NoError(t, r.AddDeclarative("fx", "rates", &fakeTable{name: "rates"}))
		require.NoError(t, r.RemoveDeclarative("fx", "rates"))

		_, err := r.GetDeclarative("fx", "rates")
		require.ErrorIs(t, err, ErrNotFound)

		err = r.RemoveDeclarative("fx", "rates")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty namespace or name never resolves", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		_, err := r.GetDeclarative("", "rates")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = r.GetDeclarative("fx", "")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRegistry_Claim(t *testing.T) {
	t.Parallel()

	t.Run("free name can be claimed", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		require.NoError(t, r.Claim("countries", "a.yaml"))
	})

	t.Run("same origin can reclaim", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		r.Upsert("countries", "a.yaml", &fakeTable{name: "countries"}, time.Now())
		require.NoError(t, r.Claim("countries", "a.yaml"))
	})

	t.Run("different origin is rejected", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		r.Upsert("countries", "a.yaml", &fakeTable{name: "countries"}, time.Now())
		err := r.Claim("countries", "b.yaml")
		require.ErrorIs(t, err, ErrAlreadyExists)
		assert.Contains(t, err.Error(), "a.yaml")
	})

	t.Run("declarative name is rejected", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		require.NoError(t, r.AddDeclarative("fx", "rates", &fakeTable{name: "rates"}))
		err := r.Claim("fx.rates", "a.yaml")
		require.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestRegistry_SourceModified(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Unknown sources always count as modified.
	assert.True(t, r.SourceModified("defs.yaml", base))

	r.CommitSource("defs.yaml", []string{"countries"}, base, true)
	assert.False(t, r.SourceModified("defs.yaml", base))
	assert.True(t, r.SourceModified("defs.yaml", base.Add(time.Second)))

	// A commit without advance leaves the stored time untouched.
	r.CommitSource("defs.yaml", []string{"countries"}, base.Add(time.Minute), false)
	assert.True(t, r.SourceModified("defs.yaml", base.Add(time.Second)))
}

func TestRegistry_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("evicts names no longer declared", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Now()
		r.Upsert("countries", "defs.yaml", &fakeTable{name: "countries"}, now)
		r.Upsert("currencies", "defs.yaml", &fakeTable{name: "currencies"}, now)
		r.CommitSource("defs.yaml", []string{"countries"}, now, true)

		evicted := r.EvictNotDeclared("defs.yaml")
		assert.Equal(t, []string{"currencies"}, evicted)

		_, err := r.Get("currencies")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = r.Get("countries")
		require.NoError(t, err)
	})

	t.Run("eviction clears retry state", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Now()
		r.Upsert("broken", "defs.yaml", &fakeTable{name: "broken", creationErr: errors.New("boom")}, now)
		r.CommitSource("defs.yaml", nil, now, true)

		evicted := r.EvictNotDeclared("defs.yaml")
		assert.Equal(t, []string{"broken"}, evicted)

		// No retry fires for the evicted name.
		require.NoError(t, r.RetryDueFailures(context.Background(), now.Add(time.Hour)))
		assert.Empty(t, r.Snapshot())
	})

	t.Run("drop source evicts everything it declared", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Now()
		r.Upsert("countries", "a.yaml", &fakeTable{name: "countries"}, now)
		r.Upsert("currencies", "b.yaml", &fakeTable{name: "currencies"}, now)
		r.CommitSource("a.yaml", []string{"countries"}, now, true)
		r.CommitSource("b.yaml", []string{"currencies"}, now, true)

		evicted := r.DropSource("a.yaml")
		assert.Equal(t, []string{"countries"}, evicted)
		assert.Equal(t, []string{"b.yaml"}, r.Origins())

		_, err := r.Get("currencies")
		require.NoError(t, err)
	})

	t.Run("does not evict entries of other origins", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Now()
		r.Upsert("countries", "a.yaml", &fakeTable{name: "countries"}, now)
		r.Upsert("currencies", "b.yaml", &fakeTable{name: "currencies"}, now)
		r.CommitSource("a.yaml", []string{"countries"}, now, true)
		r.CommitSource("b.yaml", []string{"currencies"}, now, true)

		assert.Empty(t, r.EvictNotDeclared("a.yaml"))
		assert.Empty(t, r.EvictNotDeclared("b.yaml"))
	})
}

func TestRegistry_RetryDueFailures(t *testing.T) {
	t.Parallel()

	t.Run("successful retry installs the new version", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(WithBackoff(5*time.Second, 10*time.Minute))
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		fixed := &fakeTable{name: "countries"}
		broken := &fakeTable{name: "countries", creationErr: errors.New("boom"), next: fixed}
		r.Upsert("countries", "defs.yaml", broken, now)

		// Not due yet: nothing happens.
		require.NoError(t, r.RetryDueFailures(context.Background(), now.Add(4*time.Second)))
		_, ok := r.TryGet("countries")
		assert.False(t, ok)

		// Due: the clone succeeds and replaces the broken version.
		require.NoError(t, r.RetryDueFailures(context.Background(), now.Add(5*time.Second)))
		got, err := r.Get("countries")
		require.NoError(t, err)
		assert.Same(t, fixed, got.(*fakeTable))

		statuses := r.Snapshot()
		require.Len(t, statuses, 1)
		assert.True(t, statuses[0].Loaded)
		assert.Empty(t, statuses[0].LastError)
	})

	t.Run("failed retry backs off with growing jitter", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(WithBackoff(5*time.Second, 10*time.Minute))
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		stillBroken := &fakeTable{name: "countries", creationErr: errors.New("still broken")}
		stillBroken.next = stillBroken
		r.Upsert("countries", "defs.yaml", stillBroken, now)

		retryAt := now.Add(5 * time.Second)
		err := r.RetryDueFailures(context.Background(), retryAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "still broken")

		statuses := r.Snapshot()
		require.Len(t, statuses, 1)
		assert.Equal(t, 1, statuses[0].RetryCount)
		// First failed retry used errorCount 0: delay in [5s, 6s).
		assert.False(t, statuses[0].NextAttempt.Before(retryAt.Add(5*time.Second)))
		assert.True(t, statuses[0].NextAttempt.Before(retryAt.Add(6*time.Second)))

		// Second failed retry used errorCount 1: delay in [5s, 7s).
		secondAt := statuses[0].NextAttempt
		require.Error(t, r.RetryDueFailures(context.Background(), secondAt))

		statuses = r.Snapshot()
		require.Len(t, statuses, 1)
		assert.Equal(t, 2, statuses[0].RetryCount)
		assert.False(t, statuses[0].NextAttempt.Before(secondAt.Add(5*time.Second)))
		assert.True(t, statuses[0].NextAttempt.Before(secondAt.Add(7*time.Second)))
	})
}

func TestRegistry_RefreshDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lt := Lifetime{Min: time.Minute, Max: time.Minute}

	t.Run("modified entry is replaced", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		next := &fakeTable{name: "countries", lifetime: lt, updatable: true}
		current := &fakeTable{name: "countries", lifetime: lt, updatable: true, modified: true, next: next}
		r.Upsert("countries", "defs.yaml", current, now)

		// Before the window nothing happens.
		r.RefreshDue(ctx, now.Add(30*time.Second))
		got, _ := r.Get("countries")
		assert.Same(t, current, got.(*fakeTable))

		r.RefreshDue(ctx, now.Add(time.Minute))
		got, _ = r.Get("countries")
		assert.Same(t, next, got.(*fakeTable))
	})

	t.Run("unmodified entry is rescheduled without cloning", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		var clones atomic.Int32
		current := &fakeTable{name: "countries", lifetime: lt, updatable: true, cloneCount: &clones}
		r.Upsert("countries", "defs.yaml", current, now)

		r.RefreshDue(ctx, now.Add(time.Minute))
		assert.Equal(t, int32(0), clones.Load())

		// Rescheduled: the entry is not due again inside the next window.
		statuses := r.Snapshot()
		require.Len(t, statuses, 1)
		assert.Equal(t, now.Add(2*time.Minute), statuses[0].NextUpdate)
	})

	t.Run("broken refresh keeps the previous version", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		refreshErr := errors.New("source gone")
		next := &fakeTable{name: "countries", lifetime: lt, creationErr: refreshErr}
		current := &fakeTable{name: "countries", lifetime: lt, updatable: true, modified: true, next: next}
		r.Upsert("countries", "defs.yaml", current, now)

		r.RefreshDue(ctx, now.Add(time.Minute))

		got, err := r.Get("countries")
		require.NoError(t, err)
		assert.Same(t, current, got.(*fakeTable))

		statuses := r.Snapshot()
		require.Len(t, statuses, 1)
		assert.True(t, statuses[0].Loaded)
		assert.Equal(t, refreshErr.Error(), statuses[0].LastError)
	})

	t.Run("non-refreshable entries are never probed", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		var clones atomic.Int32
		noLifetime := &fakeTable{name: "static", updatable: true, modified: true, cloneCount: &clones}
		noUpdates := &fakeTable{name: "inline", lifetime: lt, modified: true, cloneCount: &clones}
		r.Upsert("static", "defs.yaml", noLifetime, now)
		r.Upsert("inline", "defs.yaml", noUpdates, now)

		r.RefreshDue(ctx, now.Add(time.Hour))
		assert.Equal(t, int32(0), clones.Load())
	})

	t.Run("declarative entries refresh too", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry()

		next := &fakeTable{name: "rates", lifetime: lt, updatable: true}
		current := &fakeTable{name: "rates", lifetime: lt, updatable: true, modified: true, next: next}
		require.NoError(t, r.AddDeclarative("fx", "rates", current))

		r.RefreshDue(ctx, time.Now().Add(2*time.Minute))

		got, err := r.GetDeclarative("fx", "rates")
		require.NoError(t, err)
		assert.Same(t, next, got.(*fakeTable))
	})
}

func TestRegistry_ConcurrentLookupsDuringRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	ctx := context.Background()
	lt := Lifetime{Min: time.Nanosecond, Max: time.Nanosecond}
	now := time.Now()

	const tables = 8
	for i := 0; i < tables; i++ {
		name := fmt.Sprintf("table-%d", i)
		r.Upsert(name, "defs.yaml", &fakeTable{name: name, lifetime: lt, updatable: true, modified: true}, now)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				name := fmt.Sprintf("table-%d", worker*2%tables)
				got, err := r.Get(name)
				if assert.NoError(t, err) {
					assert.Equal(t, name, got.Name())
				}
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		r.RefreshDue(ctx, time.Now().Add(time.Second))
	}
	close(stop)
	wg.Wait()

	assert.Len(t, r.Snapshot(), tables)
}
