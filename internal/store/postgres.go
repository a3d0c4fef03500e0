package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over a pgx connection pool. It is the only
// concrete Store the process wires in production; tests and other packages
// depend on the Store interface instead.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and returns a PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewFromPool wraps an already-constructed pool, for callers (tests, a
// shared pool set up by testutil.SetupTestDB) that manage the pool's
// lifecycle themselves.
func NewFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Pool returns the underlying pgx pool, for callers (e.g. health checks)
// that need it directly.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}
