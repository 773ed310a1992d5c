package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Options tunes the connection pool and connect retries.
type Options struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
	ConnectRetries   int
	RetryInterval    time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxOpenConns:     25,
		MaxIdleConns:     25,
		ConnMaxLifetime:  5 * time.Minute,
		StatementTimeout: 10 * time.Second,
		ConnectRetries:   10,
		RetryInterval:    2 * time.Second,
	}
}

// Open connects to PostgreSQL, retrying while the server comes up.
// The statement timeout is applied server side so no engine call blocks forever.
func Open(ctx context.Context, databaseURL string, opts Options) (*sqlx.DB, error) {
	dsn := withStatementTimeout(databaseURL, opts.StatementTimeout)

	var (
		conn *sqlx.DB
		err  error
	)
	for attempt := 1; attempt <= opts.ConnectRetries; attempt++ {
		conn, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
			conn.SetMaxIdleConns(opts.MaxIdleConns)
			conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
			log.Info().Msg("connected to database")
			return conn, nil
		}

		log.Error().Err(err).
			Int("attempt", attempt).
			Msgf("failed to connect to database, retrying in %s", opts.RetryInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}

	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", opts.ConnectRetries, err)
}

// lib/pq forwards unrecognised keys as session parameters.
func withStatementTimeout(url string, timeout time.Duration) string {
	if timeout <= 0 || strings.Contains(url, "statement_timeout") {
		return url
	}
	ms := timeout.Milliseconds()
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%sstatement_timeout=%d", url, sep, ms)
	}
	return fmt.Sprintf("%s statement_timeout=%d", url, ms)
}

// finds all “*.up.sql” files in migrationsPath (sorted by name)
// and executes their SQL contents in order. It ignores “*.down.sql” files.
func RunMigrations(ctx context.Context, conn *sqlx.DB, migrationsPath string) error {
	pattern := filepath.Join(migrationsPath, "*.up.sql")
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Error().Err(err).Msg("failed to list up migrations")
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("failed to read migration file")
			return fmt.Errorf("could not read migration %q: %w", file, err)
		}
		stmt := strings.TrimSpace(string(sqlBytes))
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing migration %q: %w", file, err)
		}
		log.Info().Str("file", filepath.Base(file)).Msg("migration applied")
	}
	return nil
}

// inTx runs fn in a transaction, committing on success.
func inTx(ctx context.Context, conn *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
