package sqlite

import (
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/store/sqlstore"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DSN builds a modernc DSN for a database file with WAL, a busy timeout,
// foreign keys and BEGIN IMMEDIATE transactions.
func DSN(file string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		file,
	)
}

// NewStore opens a SQLite store. path is either a file path or ":memory:".
//
// SQLite allows a single writer, so the pool is capped at one connection.
// That also keeps ":memory:" databases alive across calls. The flip side is
// that code inside WithTx must only use the tx it was handed.
func NewStore(path string) (*sqlstore.Store, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = DSN(path)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.New(db, sqlstore.Dialect{
		Name:              "sqlite",
		IsUniqueViolation: IsUniqueViolation,
		Migrate:           applyMigrations,
	}), nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
