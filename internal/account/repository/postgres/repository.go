// Package postgres stores the account ledger in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool    Pool
	metrics Metrics
}

func NewRepository(ctx context.Context, dsn string, metrics Metrics) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if metrics == nil {
		return nil, errors.New("postgres repository metrics is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{pool: pool, metrics: metrics}, nil
}

// Close releases every pooled connection.
func (r *Repository) Close() {
	r.pool.Close()
}
