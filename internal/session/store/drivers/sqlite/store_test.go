package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokenkeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func credential(subject, suffix string, issued time.Time) domain.Credential {
	return domain.Credential{
		ID:               idx.NewAt(issued).String(),
		SubjectID:        subject,
		Role:             domain.RoleUser,
		AccessTokenHash:  "access-" + subject + "-" + suffix,
		RefreshTokenHash: "refresh-" + subject + "-" + suffix,
		Status:           domain.StatusActive,
		IssuedAt:         issued,
		AccessExpiresAt:  issued.Add(10 * time.Hour),
		RefreshExpiresAt: issued.Add(7 * 24 * time.Hour),
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestCredentials_InsertAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	c := credential("u1", "a", t0)

	require.NoError(t, s.Credentials().Insert(ctx, c))

	t.Run("by access hash", func(t *testing.T) {
		got, err := s.Credentials().FindActiveByAccessHash(ctx, c.AccessTokenHash, t0.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, c.ID, got.ID)
		require.Equal(t, domain.StatusActive, got.Status)
		require.Equal(t, c.AccessExpiresAt, got.AccessExpiresAt)
		require.Nil(t, got.LastUsedAt)
		require.Nil(t, got.RevokedAt)
	})

	t.Run("by refresh hash", func(t *testing.T) {
		got, err := s.Credentials().FindActiveByRefreshHash(ctx, c.RefreshTokenHash, t0.Add(24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, c.ID, got.ID)
	})

	t.Run("access lookup filters on expiry", func(t *testing.T) {
		_, err := s.Credentials().FindActiveByAccessHash(ctx, c.AccessTokenHash, t0.Add(10*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("refresh lookup filters on expiry", func(t *testing.T) {
		_, err := s.Credentials().FindActiveByRefreshHash(ctx, c.RefreshTokenHash, t0.Add(8*24*time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := s.Credentials().FindActiveByAccessHash(ctx, "nope", t0)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCredentials_OneActivePerSubject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Credentials().Insert(ctx, credential("u1", "a", t0)))

	err := s.Credentials().Insert(ctx, credential("u1", "b", t0.Add(time.Second)))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	// Other subjects are unaffected.
	require.NoError(t, s.Credentials().Insert(ctx, credential("u2", "a", t0)))

	n, err := s.Credentials().RevokeAllActive(ctx, "u1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, s.Credentials().Insert(ctx, credential("u1", "b", t0.Add(time.Minute))))

	count, err := s.Credentials().CountActiveBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	list, err := s.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, domain.StatusActive, list[0].Status, "newest first")
	require.Equal(t, domain.StatusRevoked, list[1].Status)
	require.NotNil(t, list[1].RevokedAt)
}

func TestCredentials_TouchIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))

	later := t0.Add(2 * time.Hour)
	require.NoError(t, s.Credentials().Touch(ctx, c.ID, later))
	require.NoError(t, s.Credentials().Touch(ctx, c.ID, t0.Add(time.Hour)))

	got, err := s.Credentials().FindActiveByAccessHash(ctx, c.AccessTokenHash, t0)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	require.Equal(t, later, *got.LastUsedAt)
}

func TestCredentials_RevokeIfActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))

	ok, err := s.Credentials().RevokeIfActive(ctx, c.ID, t0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Credentials().RevokeIfActive(ctx, c.ID, t0)
	require.NoError(t, err)
	require.False(t, ok, "second revoke must lose")

	// Revoked records are never touched.
	require.NoError(t, s.Credentials().Touch(ctx, c.ID, t0.Add(time.Hour)))
	list, err := s.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, list[0].LastUsedAt)
}

func TestCredentials_RevokeByHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))

	n, err := s.Credentials().RevokeByHash(ctx, c.RefreshTokenHash, t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Idempotent, and the access hash now finds nothing active either.
	n, err = s.Credentials().RevokeByHash(ctx, c.AccessTokenHash, t0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = s.Credentials().RevokeByHash(ctx, "unknown", t0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestCredentials_SweepAndPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	now := t0.Add(8 * 24 * time.Hour)

	// refresh expired a day ago, the other pair is an hour old
	old := credential("u1", "a", t0)
	fresh := credential("u2", "a", now.Add(-time.Hour))
	require.NoError(t, s.Credentials().Insert(ctx, old))
	require.NoError(t, s.Credentials().Insert(ctx, fresh))

	n, err := s.Credentials().SweepExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Second sweep changes nothing.
	n, err = s.Credentials().SweepExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	list, err := s.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRevoked, list[0].Status)

	// Revoked exactly at the threshold is kept.
	n, err = s.Credentials().PurgeStale(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// Purge only removes revoked records.
	n, err = s.Credentials().PurgeStale(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	count, err := s.Credentials().CountActiveBySubject(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCredentials_PurgeKeepsRecentlyUsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))
	require.NoError(t, s.Credentials().Touch(ctx, c.ID, t0.Add(time.Hour)))
	_, err := s.Credentials().RevokeIfActive(ctx, c.ID, t0.Add(2*time.Hour))
	require.NoError(t, err)

	n, err := s.Credentials().PurgeStale(ctx, t0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = s.Credentials().PurgeStale(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestCredentials_PurgeMeasuresFromRevocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	// Issued long ago, never used, revoked just now.
	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))
	revokedAt := t0.Add(6 * 24 * time.Hour)
	n, err := s.Credentials().RevokeByHash(ctx, c.AccessTokenHash, revokedAt)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.Credentials().PurgeStale(ctx, revokedAt.Add(-time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.Credentials().PurgeStale(ctx, revokedAt.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestWithTx_RollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Credentials().Insert(ctx, credential("u1", "a", t0)); err != nil {
			return err
		}
		return tx.Credentials().Insert(ctx, credential("u1", "b", t0))
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	count, err := s.Credentials().CountActiveBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, count)

	// Nested transactions are refused.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.WithTx(ctx, func(store.Tx) error { return nil })
	})
	require.Error(t, err)
}

func TestRevokeIfActive_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "tk.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	c := credential("u1", "a", t0)
	require.NoError(t, s.Credentials().Insert(ctx, c))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Credentials().RevokeIfActive(ctx, c.ID, t0)
			if err != nil {
				errs <- err
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}

func TestAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	empty, err := s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	secret := "JBSWY3DPEHPK3PXP"
	acc := domain.Account{
		SubjectID:    "u1",
		Login:        "alice",
		PasswordHash: "$argon2id$fake",
		Role:         domain.RoleAdmin,
		OTPSecret:    &secret,
		CreatedAt:    t0,
	}
	require.NoError(t, s.Accounts().CreateAccount(ctx, acc))
	require.ErrorIs(t, s.Accounts().CreateAccount(ctx, acc), store.ErrAlreadyExists)

	got, err := s.Accounts().GetAccountByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", got.SubjectID)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.Equal(t, secret, *got.OTPSecret)
	require.False(t, got.Deactivated())

	at := t0.Add(time.Hour)
	require.NoError(t, s.Accounts().SetDeactivated(ctx, "u1", &at))
	got, err = s.Accounts().GetAccountByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.Deactivated())

	require.NoError(t, s.Accounts().SetDeactivated(ctx, "u1", nil))
	got, err = s.Accounts().GetAccountByID(ctx, "u1")
	require.NoError(t, err)
	require.False(t, got.Deactivated())

	require.ErrorIs(t, s.Accounts().SetDeactivated(ctx, "nobody", nil), store.ErrNotFound)

	_, err = s.Accounts().GetAccountByLogin(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)

	empty, err = s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestDeactivationAdapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)
	adapter := store.NewDeactivationAdapter(s, func() time.Time { return t0 })

	// Unknown subjects are not deactivated.
	off, err := adapter.IsDeactivated(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, off)

	require.NoError(t, s.Accounts().CreateAccount(ctx, domain.Account{
		SubjectID: "u1", Login: "alice", PasswordHash: "x", Role: domain.RoleUser,
	}))

	require.NoError(t, adapter.SetDeactivated(ctx, "u1", true))
	off, err = adapter.IsDeactivated(ctx, "u1")
	require.NoError(t, err)
	require.True(t, off)

	require.NoError(t, adapter.SetDeactivated(ctx, "u1", false))
	off, err = adapter.IsDeactivated(ctx, "u1")
	require.NoError(t, err)
	require.False(t, off)
}
