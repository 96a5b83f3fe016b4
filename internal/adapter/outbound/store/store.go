// Package store is the relational outbound adapter: every §3 entity is a
// table in a modernc.org/sqlite database, queried through goqu. Grounded
// on rakunlabs-at's internal/store/sqlite3 package (goqu.Database wrapper
// over a WAL-mode sqlite connection, query-builder-to-string-then-Exec
// idiom, ulid primary keys).
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "modernc.org/sqlite"
)

// Store wraps a sqlite connection and implements the outbound ports
// consumed by the service layer (auth.CredentialStore, usage.Store,
// auditlog.Store, appeal.Store) plus direct query methods for entities
// that have no single-method port (tenant/application/scanner/policy
// administration).
type Store struct {
	db   *sql.DB
	goqu *goqu.Database
}

// Open connects to dsn (a modernc.org/sqlite data source name), applies
// pragmas for single-writer WAL operation, and runs the schema migration.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, goqu: goqu.New("sqlite3", db)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the sqlite connection is still reachable, for the
// /health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
