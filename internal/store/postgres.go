package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the atomic transition processor runs
// against. *PostgresStore implements it both pool-bound and transaction-bound;
// tests substitute in-memory fakes.
type Store interface {
	RecordEvent(ctx context.Context, rec EventRecord) (RecordedEvent, error)
	EventProcessedForUpdate(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string, subscriptionID *string) error
	MarkEventError(ctx context.Context, eventID string, errMsg string) error
	SubscriptionStatusForUpdate(ctx context.Context, platform, transactionID string) (string, bool, error)
	UpsertSubscription(ctx context.Context, rec SubscriptionRecord) (string, error)
	InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) (string, error)
	InTx(ctx context.Context, fn func(Store) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every store
// method works identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool: pool, db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InTx runs fn against a transaction-bound view of the store, committing on
// nil and rolling back on error. Calls on an already transaction-bound store
// join the current transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.withTx(ctx, func(tx *PostgresStore) error { return fn(tx) })
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*PostgresStore) error) error {
	if _, alreadyInTx := s.db.(pgx.Tx); alreadyInTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RunMigrations executes all .up.sql migration files in order.
func (s *PostgresStore) RunMigrations(ctx context.Context, migrationsDir string) error {
	// Create migrations tracking table
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	// Find all up migration files
	var migrations []string
	err = filepath.WalkDir(migrationsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".up.sql") {
			migrations = append(migrations, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Strings(migrations)

	for _, path := range migrations {
		version := filepath.Base(path)

		// Check if already applied
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		// Read and execute migration
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		_, err = s.pool.Exec(ctx, string(sql))
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		// Record migration
		_, err = s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)",
			version,
		)
		if err != nil {
			return fmt.Errorf("recording migration %s: %w", version, err)
		}
	}

	return nil
}
