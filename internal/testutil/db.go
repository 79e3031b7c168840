// Package testutil provides shared helpers for database-backed tests. They
// skip when TRIPSHARE_TEST_DSN is not set.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tripshare/migrations"
)

const dsnEnv = "TRIPSHARE_TEST_DSN"

// NewPool migrates the test database to the latest version, empties every
// table and returns a pool that is closed when the test finishes.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := requireDSN(t)
	ctx := context.Background()

	migrate(t, dsn)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `
		TRUNCATE ledger_entries, trip_state_events, trip_members, trips,
		         fcm_tokens, pricing_rates, app_settings, users CASCADE`); err != nil {
		t.Fatalf("testutil.NewPool: truncate: %v", err)
	}
	return pool
}

func migrate(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("testutil: open: %v", err)
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		t.Fatalf("testutil: goose provider: %v", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		t.Fatalf("testutil: goose up: %v", err)
	}
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping database test")
	}
	return dsn
}
