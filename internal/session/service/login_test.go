package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/pkg/cryptox"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.login.CreateAccount(ctx, "Alice", "correct horse", domain.RoleUser, nil)
	require.NoError(t, err)
	require.Equal(t, "alice", acct.Login)

	t.Run("success", func(t *testing.T) {
		pair, p, err := f.login.Login(ctx, " ALICE ", "correct horse", "")
		require.NoError(t, err)
		require.Equal(t, acct.Principal(), p)

		got, err := f.sessions.Validate(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, p, got)
	})

	t.Run("second login ends the first session", func(t *testing.T) {
		first, _, err := f.login.Login(ctx, "alice", "correct horse", "")
		require.NoError(t, err)
		_, _, err = f.login.Login(ctx, "alice", "correct horse", "")
		require.NoError(t, err)

		_, err = f.sessions.Validate(ctx, first.AccessToken)
		require.ErrorIs(t, err, service.ErrRevoked)
		require.Equal(t, 1, f.activeCount(t, acct.SubjectID))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := f.login.Login(ctx, "alice", "wrong", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("unknown login", func(t *testing.T) {
		_, _, err := f.login.Login(ctx, "mallory", "correct horse", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("empty fields", func(t *testing.T) {
		_, _, err := f.login.Login(ctx, "", "", "")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})
}

func TestLogin_Deactivated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.login.CreateAccount(ctx, "carol", "pa55word!", domain.RoleUser, nil)
	require.NoError(t, err)
	require.NoError(t, f.deact.SetDeactivated(ctx, acct.SubjectID, true))

	_, _, err = f.login.Login(ctx, "carol", "pa55word!", "")
	require.ErrorIs(t, err, service.ErrAccountDeactivated)
	require.Equal(t, 0, f.activeCount(t, acct.SubjectID))

	// The password is checked first, so a wrong one never reveals the flag.
	_, _, err = f.login.Login(ctx, "carol", "wrong", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

// Not parallel: swaps the package-level password check.
func TestLogin_UnknownAccountCostsOneHashCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.login.CreateAccount(ctx, "dave", "open sesame", domain.RoleUser, nil)
	require.NoError(t, err)

	var hashes []string
	restore := service.SetVerifyPassword(func(password, encodedHash string) error {
		hashes = append(hashes, encodedHash)
		return cryptox.VerifyPassword(password, encodedHash)
	})
	t.Cleanup(restore)

	_, _, err = f.login.Login(ctx, "nobody", "open sesame", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.Len(t, hashes, 1)
	require.NotEmpty(t, hashes[0])

	_, _, err = f.login.Login(ctx, "ghost", "anything", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.Len(t, hashes, 2)
	require.Equal(t, hashes[0], hashes[1])

	_, _, err = f.login.Login(ctx, "dave", "wrong", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.Len(t, hashes, 3)
	require.NotEqual(t, hashes[0], hashes[2])
}

func TestLogin_TOTP(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "tokenkeeper", AccountName: "root"})
	require.NoError(t, err)
	secret := key.Secret()

	_, err = f.login.CreateAccount(ctx, "root", "s3cret-pass", domain.RoleSuperadmin, &secret)
	require.NoError(t, err)

	_, _, err = f.login.Login(ctx, "root", "s3cret-pass", "")
	require.ErrorIs(t, err, service.ErrOTPRequired)

	_, _, err = f.login.Login(ctx, "root", "s3cret-pass", "000000x")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, p, err := f.login.Login(ctx, "root", "s3cret-pass", code)
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperadmin, p.Role)
}

func TestCreateAccount_Duplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.login.CreateAccount(ctx, "dave", "pw-one-two", domain.RoleUser, nil)
	require.NoError(t, err)
	_, err = f.login.CreateAccount(ctx, "DAVE", "pw-three", domain.RoleUser, nil)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = f.login.CreateAccount(ctx, "erin", "pw", "root", nil)
	require.ErrorIs(t, err, domain.ErrUnknownRole)
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.login.Bootstrap(ctx, "admin", "first-password")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperadmin, acct.Role)

	_, err = f.login.Bootstrap(ctx, "admin2", "other-password")
	require.ErrorIs(t, err, service.ErrAlreadyBootstrapped)

	_, p, err := f.login.Login(ctx, "admin", "first-password", "")
	require.NoError(t, err)
	require.True(t, p.Role.IsAdmin())
}
