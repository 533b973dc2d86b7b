// Package store handles all database interactions. This is the data access
// layer, keeping SQL queries separate from scheduling and delivery logic.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/vrsandeep/litpush/internal/logging"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("not found")

// Store provides all functions to interact with the database.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a new Store instance.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     sqlx.NewDb(db, "sqlite3"),
		logger: logging.OrDiscard(logger).With("component", "store"),
	}
}

// DB exposes the underlying handle for callers that need raw access (migrations, CLI).
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Begin starts a transaction. Methods taking a *sqlx.Tx must be run inside one.
func (s *Store) Begin() (*sqlx.Tx, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// builder is the squirrel statement builder; sqlite uses '?' placeholders.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
