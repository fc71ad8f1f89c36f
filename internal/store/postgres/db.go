// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the narrow pool surface the stores depend on. *Pool satisfies
// it in production and pgxmock satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool wraps pgxpool with swap-on-reinit semantics so a health-check
// failure can replace the underlying pool without rewiring the stores.
type Pool struct {
	mu   sync.RWMutex
	pool *pgxpool.Pool
	cfg  PoolConfig
}

// NewPool connects and pings a pgx pool using the provided config.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: pool, cfg: cfg}, nil
}

func connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (p *Pool) current() *pgxpool.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pool
}

// Exec delegates to the active pool.
func (p *Pool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return p.current().Exec(ctx, sql, arguments...)
}

// Query delegates to the active pool.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.current().Query(ctx, sql, args...)
}

// QueryRow delegates to the active pool.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.current().QueryRow(ctx, sql, args...)
}

// Ping delegates to the active pool.
func (p *Pool) Ping(ctx context.Context) error {
	return p.current().Ping(ctx)
}

// Close releases the active pool's resources.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
	}
}

// Validate pings the pool and reinitializes it on failure. The returned
// bool reports whether the pool was already healthy.
func (p *Pool) Validate(ctx context.Context) (bool, error) {
	if err := p.Ping(ctx); err == nil {
		return true, nil
	}
	fresh, err := connect(ctx, p.cfg)
	if err != nil {
		return false, fmt.Errorf("reinitialize pool: %w", err)
	}
	p.mu.Lock()
	old := p.pool
	p.pool = fresh
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return false, nil
}

// Migrate creates the tables this core owns. The users table belongs to
// the bot-command layer and is not created here.
func Migrate(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS product_status_cache (
			product_id VARCHAR(512) NOT NULL,
			pincode VARCHAR(6) NOT NULL,
			state VARCHAR(20) NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (product_id, pincode)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_alerts (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			pincode VARCHAR(6) NOT NULL,
			product_title VARCHAR(255) NOT NULL,
			product_id VARCHAR(512) NOT NULL,
			state VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			sent BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (chat_id, product_id, state, pincode)
		)`,
		`CREATE INDEX IF NOT EXISTS pending_alerts_unsent_idx
			ON pending_alerts (chat_id, created_at) WHERE sent = FALSE`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
