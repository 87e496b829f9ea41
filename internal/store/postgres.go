package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdatahq/lookupd/internal/config"
)

const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultConnMaxLifetime = 5 * time.Minute

	// connectMaxElapsed bounds the startup connect retry loop. Databases
	// often come up alongside the server, so a flat failure on the first
	// attempt would make orchestration order matter.
	connectMaxElapsed = 30 * time.Second
)

// postgresStore implements Store on a pgx connection pool.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool against the configured database
// and verifies it with an exponential-backoff ping.
func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("database port is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	connString, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxOpenConns
	if poolCfg.MaxConns == 0 {
		poolCfg.MaxConns = defaultMaxConns
	}
	poolCfg.MinConns = cfg.MaxIdleConns
	if poolCfg.MinConns == 0 {
		poolCfg.MinConns = defaultMinConns
	}
	poolCfg.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		poolCfg.MaxConnLifetime = lifetime
	}

	s, err := newPostgresStore(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	slog.Info("Database connection established",
		"user", cfg.User,
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)
	return s, nil
}

// NewPostgresStoreFromConnectionString opens a store directly from a
// PostgreSQL connection string. Used by tests and migration tooling.
func NewPostgresStoreFromConnectionString(ctx context.Context, connString string) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	return newPostgresStore(ctx, poolCfg)
}

func newPostgresStore(ctx context.Context, poolCfg *pgxpool.Config) (*postgresStore, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Retry the initial ping so the server tolerates a database that is
	// still starting.
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.Debug("Database not reachable yet, retrying", "error", pingErr)
			return struct{}{}, pingErr
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(connectMaxElapsed),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

// Save implements Store with an upsert keyed on (namespace, name).
func (p *postgresStore) Save(ctx context.Context, def *Definition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO table_definitions (id, namespace, name, spec)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, name)
		DO UPDATE SET spec = EXCLUDED.spec, updated_at = now()
		RETURNING id, created_at, updated_at`,
		def.ID, def.Namespace, def.Name, def.Spec)

	if err := row.Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save definition %s/%s: %w", def.Namespace, def.Name, err)
	}
	return nil
}

// Delete implements Store.
func (p *postgresStore) Delete(ctx context.Context, namespace, name string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM table_definitions WHERE namespace = $1 AND name = $2`,
		namespace, name)
	if err != nil {
		return fmt.Errorf("failed to delete definition %s/%s: %w", namespace, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, name)
	}
	return nil
}

// List implements Store.
func (p *postgresStore) List(ctx context.Context) ([]*Definition, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, namespace, name, spec, created_at, updated_at
		FROM table_definitions
		ORDER BY namespace, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		var def Definition
		if err := rows.Scan(&def.ID, &def.Namespace, &def.Name, &def.Spec,
			&def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definitions: %w", err)
	}
	return defs, nil
}

// Ping implements Store.
func (p *postgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Store.
func (p *postgresStore) Close() error {
	slog.Info("Closing database connection pool")
	p.pool.Close()
	return nil
}

// IsNotFound reports whether err marks a missing definition, unifying the
// store sentinel with pgx's no-rows error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
