package postgres

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
//go:generate mockgen -destination=pgx_mocks_test.go -package=$GOPACKAGE github.com/jackc/pgx/v5 Tx,Rows,Row

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type (
	// Metrics records duration and status of repository operations.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}

	// Querier is the statement surface shared by the pool and an open transaction.
	Querier interface {
		Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	}

	// Pool is the subset of *pgxpool.Pool used by the repository.
	Pool interface {
		Querier
		Begin(ctx context.Context) (pgx.Tx, error)
		Ping(ctx context.Context) error
		Close()
	}
)
