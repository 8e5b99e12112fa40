package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories hang off it so a Tx exposes exactly the
// same surface as the root store.
type Store interface {
	Credentials() Credentials
	Accounts() Accounts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Never call the
	// outer Store from inside fn; use the tx argument.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Credentials holds one record per issued token pair. Status only ever
// moves from active to revoked, and at most one record per subject is
// active at a time (the schema enforces this with a partial unique index).
type Credentials interface {
	// RevokeAllActive revokes every active record for subjectID and returns
	// how many changed.
	RevokeAllActive(ctx context.Context, subjectID string, now time.Time) (int64, error)

	// Insert stores a new active record. Returns ErrAlreadyExists if the
	// subject already has an active record or a hash collides.
	Insert(ctx context.Context, c domain.Credential) error

	// FindActiveByAccessHash returns the active record whose access token
	// hash matches and whose access expiry is after now.
	FindActiveByAccessHash(ctx context.Context, hash string, now time.Time) (domain.Credential, error)

	// FindActiveByRefreshHash returns the active record whose refresh token
	// hash matches and whose refresh expiry is after now.
	FindActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (domain.Credential, error)

	// Touch moves last_used_at forward to now. It never moves it back and
	// never touches revoked records.
	Touch(ctx context.Context, id string, now time.Time) error

	// RevokeIfActive revokes the record only if it is still active and
	// reports whether this call did it.
	RevokeIfActive(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeByHash revokes the active record matching hash as either its
	// access or refresh token.
	RevokeByHash(ctx context.Context, hash string, now time.Time) (int64, error)

	// SweepExpired revokes active records whose access or refresh expiry is
	// before now.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// PurgeStale deletes revoked records whose revocation is older than
	// threshold.
	PurgeStale(ctx context.Context, threshold time.Time) (int64, error)

	// CountActiveBySubject returns the number of active records for a subject.
	CountActiveBySubject(ctx context.Context, subjectID string) (int, error)

	// ListBySubject returns all records for a subject, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]domain.Credential, error)
}

// Accounts backs the login flow and the deactivation flag.
type Accounts interface {
	// CreateAccount inserts a new account. ErrAlreadyExists on a duplicate
	// login or subject id.
	CreateAccount(ctx context.Context, a domain.Account) error

	GetAccountByLogin(ctx context.Context, login string) (domain.Account, error)
	GetAccountByID(ctx context.Context, subjectID string) (domain.Account, error)

	// SetDeactivated sets or clears (at == nil) deactivated_at.
	SetDeactivated(ctx context.Context, subjectID string, at *time.Time) error

	// IsEmpty returns true if there are no accounts.
	IsEmpty(ctx context.Context) (bool, error)
}
