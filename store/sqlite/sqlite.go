/*
Package sqlite provides a SQLite-backed implementation of attendance.Repository.

TABLES:
  workers, schedules:       Structural data (survives WipeTransactional)
  punches:                  Clock events
  admin_entries:            Administrative overrides
  hours_bank_transactions:  Append-only ledger, ordered by seq
  hours_bank_accounts:      Cached (hours, value) per worker
  reconciliation_markers:   Last posted delta per (worker, date)
  monthly_reports:          One row per (worker, year, month)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on hours_bank_transactions
  - No DELETE statements on hours_bank_transactions, except the explicit
    WipeTransactional reset
  - Corrections via reversal transactions only

DECIMALS:
  Hours and money are stored as TEXT and scanned back with
  decimal.Decimal's sql.Scanner, so no value goes through float64.

MIGRATION:
  Versioned schema files are embedded from migrations/ and applied with
  golang-migrate on New().

CONCURRENCY:
  One open connection (SQLite has a single writer) plus a sync.RWMutex
  around every statement group.

USAGE:
  store, err := sqlite.New("./data/hoursbank.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := attendance.NewEngine(store, attendance.EngineOptions{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timestampLayout = time.RFC3339Nano

// Store implements attendance.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ attendance.Repository = (*Store)(nil)

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (uint, error) {
	var v uint
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&v)
	return v, err
}

// runMigrations applies the embedded schema. The migrate instance is not
// closed because that would close db as well; only the source is released.
func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	defer source.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// WipeTransactional clears everything except workers and schedules.
func (s *Store) WipeTransactional(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tables := []string{
		"punches", "admin_entries", "hours_bank_transactions",
		"hours_bank_accounts", "reconciliation_markers", "monthly_reports",
	}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timestampLayout, s)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isIdempotencyKeyError(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key")
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// foreignKeyErr maps a missing parent worker to generic.ErrEntityNotFound.
func foreignKeyErr(err error, what string) error {
	if isForeignKeyError(err) {
		return fmt.Errorf("%s: %w", what, generic.ErrEntityNotFound)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}
