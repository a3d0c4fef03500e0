// Package testutil provides shared fixtures for integration tests that
// need a real PostgreSQL instance.
package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/tbrpg/partyhub/internal/store"
)

// SetupTestDB boots a throwaway PostgreSQL 16 container, applies the
// embedded schema through the same store.Migrate path the server runs at
// startup, and hands back a connected pool. Container and pool are torn
// down when the test finishes.
func SetupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("partyhub"),
		postgres.WithUsername("partyhub"),
		postgres.WithPassword("partyhub"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		tb.Fatalf("postgres container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			tb.Logf("postgres container teardown: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("container dsn: %v", err)
	}

	if err := store.Migrate(ctx, dsn); err != nil {
		tb.Fatalf("migrating test schema: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		tb.Fatalf("connecting test pool: %v", err)
	}
	tb.Cleanup(pool.Close)

	return pool
}
