package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL    string `yaml:"url"`
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`

	MaxConns int32 `yaml:"max_conns"`
	MinConns int32 `yaml:"min_conns"`

	StatementTimeout time.Duration `yaml:"statement_timeout"`
	MigrationsDir    string        `yaml:"migrations_dir"`
	RetentionDays    int           `yaml:"retention_days"`
}

func (c Config) normalized() Config {
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.Table == "" {
		c.Table = "tickets"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = "migrations"
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	return c
}

// DB wraps one pgx pool behind two surfaces: the native pool for COPY
// and a sqlx handle over the same pool for queries and migrations.
type DB struct {
	*sqlx.DB
	Pool *pgxpool.Pool
	cfg  Config
}

// NewDB creates a new database connection pool.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.normalized()
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		DB:   sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		Pool: pool,
		cfg:  cfg,
	}, nil
}

// Close releases both surfaces of the pool.
func (db *DB) Close() error {
	err := db.DB.Close()
	db.Pool.Close()
	return err
}

// Health checks if the database is reachable.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
