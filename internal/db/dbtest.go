package db

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNoTestDatabase is returned by OpenTestStore when TEST_DATABASE_URL is unset.
var ErrNoTestDatabase = errors.New("TEST_DATABASE_URL environment variable is not set")

// OpenTestStore connects to TEST_DATABASE_URL, applies the migrations and
// truncates every engine table.
func OpenTestStore(ctx context.Context, migrationsPath string) (*sqlx.DB, Store, error) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		return nil, nil, ErrNoTestDatabase
	}

	opts := DefaultOptions()
	opts.ConnectRetries = 3
	opts.RetryInterval = 500 * time.Millisecond

	conn, err := Open(ctx, dbURL, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := RunMigrations(ctx, conn, migrationsPath); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if _, err := conn.ExecContext(ctx, `
		TRUNCATE scheduled_items, schedules, rotation_assignments, rotation_records,
		         rotation_pools, scheduling_holds, scheduling_metadata, assets, delay_policies
		RESTART IDENTITY CASCADE;`); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, NewStore(conn), nil
}
