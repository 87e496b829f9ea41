package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refdatahq/lookupd/internal/telemetry"
)

const (
	// DefaultCheckPeriod is how often the background loop runs a reload
	// pass when no other period is configured.
	DefaultCheckPeriod = 5 * time.Second
)

// Coordinator drives reload passes over the definition sources: scanning
// changed sources, evicting names they no longer declare, retrying failed
// loads, and refreshing stale versions.
type Coordinator interface {
	// Start runs the background reload loop. Blocks until the context is
	// cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop signals the background loop and waits for it to exit.
	Stop() error

	// Reload runs one forced synchronous pass over every source. The
	// first error encountered aborts the pass and is returned, which
	// makes Reload suitable for fail-fast startup loading.
	Reload(ctx context.Context) error

	// ReloadTable runs one forced pass restricted to the named table and
	// fails if the table ends the pass without a usable version. The pass
	// does not advance per-source modification times, since sources may
	// declare other tables that were skipped.
	ReloadTable(ctx context.Context, name string) error

	// Poke requests an early background pass without blocking. Used by
	// source watchers to apply edits before the next tick.
	Poke()
}

// defaultCoordinator is the default implementation of Coordinator.
type defaultCoordinator struct {
	registry *Registry
	repo     Repository
	factory  Factory

	checkPeriod time.Duration

	// passMu serializes reload passes against each other. It is never
	// held while waiting on a partition lock held by another pass, and
	// foreground lookups never take it.
	passMu sync.Mutex

	// Lifecycle management. lifecycleMu guards cancelFunc, which is set by
	// Start and read by Stop, possibly from different goroutines.
	lifecycleMu sync.Mutex
	cancelFunc  context.CancelFunc
	done        chan struct{}
	kick        chan struct{}

	// Metrics
	metrics *telemetry.LoaderMetrics
}

// CoordinatorOption configures the coordinator.
type CoordinatorOption func(*defaultCoordinator)

// WithCheckPeriod sets the background pass period.
func WithCheckPeriod(period time.Duration) CoordinatorOption {
	return func(c *defaultCoordinator) {
		if period > 0 {
			c.checkPeriod = period
		}
	}
}

// WithLoaderMetrics sets the metrics recorded after each pass.
func WithLoaderMetrics(metrics *telemetry.LoaderMetrics) CoordinatorOption {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// NewCoordinator creates a coordinator with injected dependencies.
func NewCoordinator(registry *Registry, repo Repository, factory Factory, opts ...CoordinatorOption) Coordinator {
	c := &defaultCoordinator{
		registry:    registry,
		repo:        repo,
		factory:     factory,
		checkPeriod: DefaultCheckPeriod,
		done:        make(chan struct{}),
		kick:        make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs the background reload loop.
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting table reload coordinator", "check_period", c.checkPeriod)

	loopCtx, cancel := context.WithCancel(ctx)
	c.lifecycleMu.Lock()
	c.cancelFunc = cancel
	c.lifecycleMu.Unlock()
	defer func() {
		close(c.done)
		slog.Info("Table reload coordinator shut down")
	}()

	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.backgroundPass(loopCtx)
		case <-c.kick:
			c.backgroundPass(loopCtx)
			ticker.Reset(c.checkPeriod)
		case <-loopCtx.Done():
			slog.Info("Table reload coordinator stopping")
			return nil
		}
	}
}

// Stop signals the background loop and waits for it to finish. Stopping a
// coordinator that never started is a no-op.
func (c *defaultCoordinator) Stop() error {
	c.lifecycleMu.Lock()
	cancel := c.cancelFunc
	c.lifecycleMu.Unlock()

	if cancel != nil {
		slog.Info("Stopping table reload coordinator")
		cancel()
		<-c.done
	}
	return nil
}

// Poke requests an early background pass without blocking.
func (c *defaultCoordinator) Poke() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Reload runs one forced synchronous pass, failing fast on the first error.
func (c *defaultCoordinator) Reload(ctx context.Context) error {
	return c.runPass(ctx, passOptions{force: true, failFast: true})
}

// ReloadTable runs a forced pass restricted to one table and verifies the
// table is usable afterwards.
func (c *defaultCoordinator) ReloadTable(ctx context.Context, name string) error {
	if err := c.runPass(ctx, passOptions{force: true, only: name}); err != nil {
		return err
	}
	if _, err := c.registry.Get(name); err != nil {
		return fmt.Errorf("table %s is not usable after reload: %w", name, err)
	}
	return nil
}

// backgroundPass runs one periodic pass, logging failures instead of
// propagating them.
func (c *defaultCoordinator) backgroundPass(ctx context.Context) {
	if err := c.runPass(ctx, passOptions{}); err != nil {
		slog.Error("Reload pass finished with errors", "error", err)
	}
}

// passOptions control one reload pass. force bypasses the per-source
// modification time gate; only restricts instantiation to a single name;
// failFast aborts the pass on the first error instead of isolating it.
type passOptions struct {
	force    bool
	only     string
	failFast bool
}

// runPass executes one full reload pass: scan changed sources, evict names
// they no longer declare, retry failed loads, refresh stale versions.
// Passes are serialized; foreground lookups proceed concurrently and only
// contend on the per-partition locks for O(1) bookkeeping sections.
func (c *defaultCoordinator) runPass(ctx context.Context, opts passOptions) error {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	passID := uuid.NewString()
	start := time.Now()
	slog.Debug("Starting reload pass",
		"pass_id", passID,
		"forced", opts.force,
		"only", opts.only)

	var errs []error

	ids, listErr := c.repo.ListSources(ctx)
	if listErr != nil {
		listErr = fmt.Errorf("listing definition sources: %w", listErr)
		if opts.failFast {
			return listErr
		}
		slog.Error("Failed to list definition sources", "pass_id", passID, "error", listErr)
		errs = append(errs, listErr)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		if err := c.reloadSource(ctx, id, opts); err != nil {
			if opts.failFast {
				return err
			}
			slog.Error("Failed to reload definition source",
				"pass_id", passID,
				"source", id,
				"error", err)
			errs = append(errs, err)
		}
	}

	// Evict names whose declaring source dropped them, or whose source
	// disappeared entirely. Skipped when listing failed: an empty source
	// list caused by a transient repository error must not wipe the
	// registry.
	if listErr == nil {
		for _, origin := range c.registry.Origins() {
			var evicted []string
			if _, ok := seen[origin]; !ok {
				evicted = c.registry.DropSource(origin)
			} else {
				evicted = c.registry.EvictNotDeclared(origin)
			}
			if len(evicted) > 0 {
				slog.Info("Evicted tables no longer declared",
					"pass_id", passID,
					"source", origin,
					"tables", evicted)
			}
		}
	}

	now := time.Now()
	if err := c.registry.RetryDueFailures(ctx, now); err != nil {
		if opts.failFast {
			return err
		}
		slog.Warn("Some failed tables could not be recovered", "pass_id", passID, "error", err)
		errs = append(errs, err)
	}

	c.registry.RefreshDue(ctx, now)

	c.recordPassMetrics(ctx, time.Since(start), len(errs) == 0)
	slog.Debug("Reload pass complete",
		"pass_id", passID,
		"duration", time.Since(start),
		"errors", len(errs))

	return errors.Join(errs...)
}

// reloadSource scans one definition source and instantiates the tables it
// declares. The declared-name set is always recorded in full, including
// names skipped by a restricted pass, so eviction stays correct.
func (c *defaultCoordinator) reloadSource(ctx context.Context, origin string, opts passOptions) error {
	if !c.repo.Exists(ctx, origin) {
		slog.Warn("Definition source listed but not readable", "source", origin)
		return nil
	}

	modifiedAt, err := c.repo.ModifiedAt(ctx, origin)
	if err != nil {
		return fmt.Errorf("checking modification time of %s: %w", origin, err)
	}
	if !opts.force && !c.registry.SourceModified(origin, modifiedAt) {
		return nil
	}

	doc, err := c.repo.Load(ctx, origin)
	if err != nil {
		return fmt.Errorf("loading %s: %w", origin, err)
	}

	declared := make([]string, 0, len(doc.Definitions))
	for _, def := range doc.Definitions {
		declared = append(declared, def.Name)
	}
	c.registry.CommitSource(origin, declared, modifiedAt, opts.only == "")

	var errs []error
	for _, def := range doc.Definitions {
		if opts.only != "" && def.Name != opts.only {
			continue
		}
		if err := c.registry.Claim(def.Name, origin); err != nil {
			errs = append(errs, err)
			continue
		}

		obj := c.factory.Create(ctx, def.Name, def.Spec)
		c.registry.Upsert(def.Name, origin, obj, time.Now())
		if cerr := obj.CreationError(); cerr != nil {
			errs = append(errs, fmt.Errorf("creating table %s: %w", def.Name, cerr))
		}
	}
	return errors.Join(errs...)
}

// recordPassMetrics publishes per-pass telemetry from a registry snapshot.
func (c *defaultCoordinator) recordPassMetrics(ctx context.Context, duration time.Duration, success bool) {
	if c.metrics == nil {
		return
	}

	var loaded, failed int64
	for _, st := range c.registry.Snapshot() {
		if st.Loaded {
			loaded++
		} else {
			failed++
		}
	}
	c.metrics.RecordPass(ctx, duration, success)
	c.metrics.RecordTables(ctx, loaded, failed)
}
