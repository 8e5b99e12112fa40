// Package sqlstore is the database/sql implementation of store.Store shared
// by the sqlite and postgres drivers. Queries are written with "?" bind
// vars and rebound per driver by sqlx; timestamps are stored as unix
// milliseconds so range comparisons behave the same on both engines.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/jmoiron/sqlx"
)

// Dialect holds the driver specific bits.
type Dialect struct {
	// Name of the engine, used in logs and errors.
	Name string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(error) bool

	// Migrate applies the embedded migrations for this engine.
	Migrate func(db *sql.DB) error
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sqlx.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle, mostly for tests.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Dialect() string { return s.dialect.Name }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ApplyMigrations applies any pending migrations embedded in the driver.
func (s *Store) ApplyMigrations() error {
	if s.dialect.Migrate == nil {
		return errors.New("sqlstore: no migrations for " + s.dialect.Name)
	}
	return s.dialect.Migrate(s.db.DB)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx, s.dialect), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Credentials() store.Credentials {
	return &credentialsRepo{q: s.db, dialect: s.dialect}
}

func (s *Store) Accounts() store.Accounts {
	return &accountsRepo{q: s.db, dialect: s.dialect}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (d Dialect) mapWriteErr(err error) error {
	if err != nil && d.IsUniqueViolation(err) {
		return errors.Join(store.ErrAlreadyExists, err)
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func mapNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func mapOptionalMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		val := ns.String
		return &val
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
