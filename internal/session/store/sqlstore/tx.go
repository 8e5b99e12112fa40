package sqlstore

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/jmoiron/sqlx"
)

type txStore struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func newTx(tx *sqlx.Tx, dialect Dialect) *txStore {
	return &txStore{tx: tx, dialect: dialect}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits/rolls back; outer DB stays open

// Ping is a no-op for transactions, the connection is already held.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported
	return sql.ErrTxDone
}

func (t *txStore) Credentials() store.Credentials {
	return &credentialsRepo{q: t.tx, dialect: t.dialect}
}

func (t *txStore) Accounts() store.Accounts {
	return &accountsRepo{q: t.tx, dialect: t.dialect}
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
