package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// entry is the per-name state of one registered object. loadable is nil
// while no version has ever been usable; err carries the most recent load
// failure and is replayed to lookups that find no usable version.
type entry struct {
	loadable   Loadable
	kind       Kind
	origin     string
	err        error
	nextUpdate time.Time
}

// failedEntry tracks a name whose load attempts have all produced broken
// versions. pending is the most recent broken version; retrying clones it.
// Removed the moment a retry yields a usable version.
type failedEntry struct {
	pending     Loadable
	nextAttempt time.Time
	errorCount  int
}

// sourceDirectory records what one definition source declared during its
// last scan, and the modification time that scan observed. Names that
// disappear from the directory between scans are evicted.
type sourceDirectory struct {
	declared   map[string]struct{}
	modifiedAt time.Time
}

// Registry holds the two partitions of managed tables: entries declared by
// scanned definition sources and entries registered through the API. Each
// partition is guarded by its own mutex so lookups against one never wait
// on the other. Operations that must observe both partitions (collision
// checks) take the source lock before the declarative lock.
//
// Object construction and clone I/O always happen outside the locks; only
// pointer swaps and bookkeeping run under them.
type Registry struct {
	backoffInitial time.Duration
	backoffMax     time.Duration
	jitter         *jitter

	sourceMu sync.Mutex
	source   map[string]*entry
	dirs     map[string]*sourceDirectory
	failed   map[string]*failedEntry

	declMu sync.Mutex
	decl   map[string]*entry
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBackoff sets the retry backoff bounds for failed loads.
func WithBackoff(initial, maxDelay time.Duration) RegistryOption {
	return func(r *Registry) {
		r.backoffInitial = initial
		r.backoffMax = maxDelay
	}
}

// WithRandSource injects the random source used for backoff and refresh
// jitter. Intended for deterministic tests.
func WithRandSource(src rand.Source) RegistryOption {
	return func(r *Registry) {
		r.jitter = newJitter(src)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		jitter:         newJitter(nil),
		source:         make(map[string]*entry),
		dirs:           make(map[string]*sourceDirectory),
		failed:         make(map[string]*failedEntry),
		decl:           make(map[string]*entry),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// QualifiedName returns the registry key of a declarative table.
func QualifiedName(namespace, name string) string {
	return namespace + "." + name
}

// Get returns the current version of the named table. Declarative entries
// are keyed by their qualified "<namespace>.<name>" form and are consulted
// first. A name that is registered but has no usable version fails with
// the error captured by its most recent load attempt.
func (r *Registry) Get(name string) (Loadable, error) {
	if obj, err, ok := r.lookup(&r.declMu, r.decl, name); ok {
		return obj, err
	}
	if obj, err, ok := r.lookup(&r.sourceMu, r.source, name); ok {
		return obj, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// TryGet is Get without the error: absent and unusable names both report
// ok == false.
func (r *Registry) TryGet(name string) (Loadable, bool) {
	obj, err := r.Get(name)
	if err != nil {
		return nil, false
	}
	return obj, true
}

// GetDeclarative resolves a declarative table by namespace and name,
// without consulting the source partition.
func (r *Registry) GetDeclarative(namespace, name string) (Loadable, error) {
	if namespace == "" || name == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, QualifiedName(namespace, name))
	}
	if obj, err, ok := r.lookup(&r.declMu, r.decl, QualifiedName(namespace, name)); ok {
		return obj, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, QualifiedName(namespace, name))
}

func (*Registry) lookup(mu *sync.Mutex, entries map[string]*entry, name string) (Loadable, error, bool) {
	mu.Lock()
	defer mu.Unlock()

	e, ok := entries[name]
	if !ok {
		return nil, nil, false
	}
	if e.loadable != nil {
		return e.loadable, nil, true
	}
	if e.err != nil {
		// Replay the captured load failure to the caller.
		return nil, e.err, true
	}
	return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name), true
}

// AddDeclarative registers a table through the declarative channel under
// its qualified name. The name must not collide with any entry in either
// partition; the check holds both locks (source first) so no concurrent
// insert can slip between them.
func (r *Registry) AddDeclarative(namespace, name string, obj Loadable) error {
	qualified := QualifiedName(namespace, name)

	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()
	if e, ok := r.source[qualified]; ok {
		return fmt.Errorf("%w: %s is already declared by source %s", ErrAlreadyExists, qualified, e.origin)
	}

	r.declMu.Lock()
	defer r.declMu.Unlock()
	if _, ok := r.decl[qualified]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, qualified)
	}

	e := &entry{kind: KindDeclarative, origin: qualified}
	if cerr := obj.CreationError(); cerr != nil {
		e.err = cerr
	} else {
		e.loadable = obj
		e.nextUpdate = r.jitter.nextUpdateAt(time.Now(), obj.Lifetime())
	}
	r.decl[qualified] = e
	return nil
}

// RemoveDeclarative removes a declaratively registered table.
func (r *Registry) RemoveDeclarative(namespace, name string) error {
	qualified := QualifiedName(namespace, name)

	r.declMu.Lock()
	defer r.declMu.Unlock()
	if _, ok := r.decl[qualified]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, qualified)
	}
	delete(r.decl, qualified)
	return nil
}

// Claim verifies that name may be loaded from origin, before the caller
// spends I/O on construction. It fails when the name is registered
// declaratively or already owned by a different source.
func (r *Registry) Claim(name, origin string) error {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()
	if e, ok := r.source[name]; ok && e.origin != origin {
		return fmt.Errorf("%w: %s is already declared by source %s", ErrAlreadyExists, name, e.origin)
	}

	r.declMu.Lock()
	_, inDecl := r.decl[name]
	r.declMu.Unlock()
	if inDecl {
		return fmt.Errorf("%w: %s is registered declaratively", ErrAlreadyExists, name)
	}
	return nil
}

// Upsert installs the result of a source-channel load. A usable object
// replaces the current version and clears any retry state. A broken one
// records its creation error on the entry — keeping the name visible to
// inspection — and, when the name has no usable version to fall back on,
// schedules retries starting after the initial backoff.
func (r *Registry) Upsert(name, origin string, obj Loadable, now time.Time) {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	e, ok := r.source[name]
	if !ok {
		e = &entry{kind: KindSource}
		r.source[name] = e
	}
	e.origin = origin

	if cerr := obj.CreationError(); cerr != nil {
		e.err = cerr
		if e.loadable == nil {
			f, ok := r.failed[name]
			if !ok {
				f = &failedEntry{}
				r.failed[name] = f
			}
			f.pending = obj
			f.errorCount = 0
			f.nextAttempt = now.Add(r.backoffInitial)
		}
		return
	}

	e.loadable = obj
	e.err = nil
	e.nextUpdate = r.jitter.nextUpdateAt(now, obj.Lifetime())
	delete(r.failed, name)
}

// SourceModified reports whether origin changed since its last committed
// scan. Unknown origins are always considered modified.
func (r *Registry) SourceModified(origin string, modifiedAt time.Time) bool {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	dir, ok := r.dirs[origin]
	if !ok {
		return true
	}
	return modifiedAt.After(dir.modifiedAt)
}

// CommitSource records the set of names origin declared during a scan.
// advance controls whether the stored modification time moves forward;
// restricted reloads keep it untouched so the next full pass still sees
// the source as changed for the names they skipped.
func (r *Registry) CommitSource(origin string, declared []string, modifiedAt time.Time, advance bool) {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	dir, ok := r.dirs[origin]
	if !ok {
		dir = &sourceDirectory{}
		r.dirs[origin] = dir
	}
	dir.declared = make(map[string]struct{}, len(declared))
	for _, name := range declared {
		dir.declared[name] = struct{}{}
	}
	if advance {
		dir.modifiedAt = modifiedAt
	}
}

// Origins returns every source the registry has scanned.
func (r *Registry) Origins() []string {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	origins := make([]string, 0, len(r.dirs))
	for origin := range r.dirs {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

// EvictNotDeclared removes entries loaded from origin whose names are no
// longer in its directory, together with any retry state. It returns the
// evicted names.
func (r *Registry) EvictNotDeclared(origin string) []string {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	dir := r.dirs[origin]
	return r.evictFromLocked(origin, dir)
}

// DropSource forgets origin entirely, evicting every entry it declared.
func (r *Registry) DropSource(origin string) []string {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	delete(r.dirs, origin)
	return r.evictFromLocked(origin, nil)
}

// evictFromLocked removes source entries owned by origin that are not in
// dir.declared. Caller must hold sourceMu.
func (r *Registry) evictFromLocked(origin string, dir *sourceDirectory) []string {
	var evicted []string
	for name, e := range r.source {
		if e.origin != origin {
			continue
		}
		if dir != nil {
			if _, ok := dir.declared[name]; ok {
				continue
			}
		}
		delete(r.source, name)
		delete(r.failed, name)
		evicted = append(evicted, name)
	}
	sort.Strings(evicted)
	return evicted
}

// RetryDueFailures attempts one clone for every failed entry whose retry
// window has passed. Clones run outside the partition lock; only the
// resulting bookkeeping happens under it. The returned error joins the
// creation errors of attempts that failed again.
func (r *Registry) RetryDueFailures(ctx context.Context, now time.Time) error {
	type attempt struct {
		name    string
		pending Loadable
	}

	r.sourceMu.Lock()
	var due []attempt
	for name, f := range r.failed {
		if !f.nextAttempt.After(now) {
			due = append(due, attempt{name: name, pending: f.pending})
		}
	}
	r.sourceMu.Unlock()

	var errs []error
	for _, a := range due {
		obj := a.pending.Clone(ctx)

		r.sourceMu.Lock()
		f, ok := r.failed[a.name]
		if !ok || f.pending != a.pending {
			// Evicted or superseded while the clone was in flight.
			r.sourceMu.Unlock()
			continue
		}

		if cerr := obj.CreationError(); cerr != nil {
			delay := r.jitter.nextRetryDelay(f.errorCount, r.backoffInitial, r.backoffMax)
			f.pending = obj
			f.errorCount++
			f.nextAttempt = now.Add(delay)
			if e, ok := r.source[a.name]; ok {
				e.err = cerr
			}
			errs = append(errs, fmt.Errorf("retrying table %s: %w", a.name, cerr))
		} else {
			if e, ok := r.source[a.name]; ok {
				e.loadable = obj
				e.err = nil
				e.nextUpdate = r.jitter.nextUpdateAt(now, obj.Lifetime())
			}
			delete(r.failed, a.name)
			slog.Info("Recovered previously failed table", "table", a.name)
		}
		r.sourceMu.Unlock()
	}

	return errors.Join(errs...)
}

// RefreshDue refreshes every eligible entry whose scheduled update time
// has passed and whose backing source reports a change. Modification
// probes and clones run outside the locks; the version swap is a pointer
// replacement under the partition lock, so a concurrent lookup sees either
// the previous or the next version, never anything in between.
//
// A clone that captures a creation error leaves the previous usable
// version in place and records the error on the entry: a transiently
// broken source serves stale data instead of taking the table offline.
func (r *Registry) RefreshDue(ctx context.Context, now time.Time) {
	r.refreshPartition(ctx, now, &r.sourceMu, r.source)
	r.refreshPartition(ctx, now, &r.declMu, r.decl)
}

func (r *Registry) refreshPartition(ctx context.Context, now time.Time, mu *sync.Mutex, entries map[string]*entry) {
	type candidate struct {
		name    string
		current Loadable
	}

	mu.Lock()
	var due []candidate
	for name, e := range entries {
		if e.loadable == nil || !e.loadable.Lifetime().Refreshable() || !e.loadable.SupportsUpdates() {
			continue
		}
		if e.nextUpdate.After(now) {
			continue
		}
		due = append(due, candidate{name: name, current: e.loadable})
	}
	mu.Unlock()

	for _, c := range due {
		var next Loadable
		if c.current.IsModified(ctx) {
			next = c.current.Clone(ctx)
		}

		mu.Lock()
		e, ok := entries[c.name]
		if !ok || e.loadable != c.current {
			// Evicted or replaced while probing; the other writer already
			// rescheduled it.
			mu.Unlock()
			continue
		}
		e.nextUpdate = r.jitter.nextUpdateAt(now, c.current.Lifetime())
		if next != nil {
			if cerr := next.CreationError(); cerr != nil {
				e.err = cerr
				slog.Warn("Failed to refresh table, keeping previous version",
					"table", c.name,
					"error", cerr)
			} else {
				e.loadable = next
				e.err = nil
			}
		}
		mu.Unlock()
	}
}

// EntryStatus describes one registered name for inspection endpoints.
type EntryStatus struct {
	Name        string
	Kind        Kind
	Origin      string
	Loaded      bool
	LastError   string
	NextUpdate  time.Time
	RetryCount  int
	NextAttempt time.Time
}

// Snapshot returns the status of every registered name, sorted by name.
func (r *Registry) Snapshot() []EntryStatus {
	var statuses []EntryStatus

	r.sourceMu.Lock()
	for name, e := range r.source {
		st := entryStatus(name, e)
		if f, ok := r.failed[name]; ok {
			st.RetryCount = f.errorCount
			st.NextAttempt = f.nextAttempt
		}
		statuses = append(statuses, st)
	}
	r.sourceMu.Unlock()

	r.declMu.Lock()
	for name, e := range r.decl {
		statuses = append(statuses, entryStatus(name, e))
	}
	r.declMu.Unlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func entryStatus(name string, e *entry) EntryStatus {
	st := EntryStatus{
		Name:       name,
		Kind:       e.kind,
		Origin:     e.origin,
		Loaded:     e.loadable != nil,
		NextUpdate: e.nextUpdate,
	}
	if e.err != nil {
		st.LastError = e.err.Error()
	}
	return st
}
