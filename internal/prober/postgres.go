package prober

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProbe pings a Postgres database through a small pool.
type PostgresProbe struct {
	name string
	pool *pgxpool.Pool
}

// NewPostgresProbe parses the connection string and creates the pool.
// Connections are opened lazily on the first check.
func NewPostgresProbe(ctx context.Context, name, databaseURL string) (*PostgresProbe, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &PostgresProbe{name: name, pool: pool}, nil
}

// Name returns the service name.
func (p *PostgresProbe) Name() string { return p.name }

// Check pings the database.
func (p *PostgresProbe) Check(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := p.pool.Ping(ctx)
	return time.Since(start), err
}

// Close closes the pool.
func (p *PostgresProbe) Close() error {
	p.pool.Close()
	return nil
}
