package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/stretchr/testify/require"
)

func TestAdmin_DeactivateRevokesAndBlocks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.login.CreateAccount(ctx, "frank", "frank-password", domain.RoleUser, nil)
	require.NoError(t, err)
	pair, _, err := f.login.Login(ctx, "frank", "frank-password", "")
	require.NoError(t, err)

	n, err := f.admin.Deactivate(ctx, acct.SubjectID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = f.sessions.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, service.ErrRevoked)
	_, err = f.sessions.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrRevoked)
	_, err = f.sessions.Issue(ctx, acct.Principal())
	require.ErrorIs(t, err, service.ErrAccountDeactivated)

	require.NoError(t, f.admin.Reactivate(ctx, acct.SubjectID))
	_, err = f.sessions.Issue(ctx, acct.Principal())
	require.NoError(t, err)
}

func TestAdmin_UnknownSubject(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.admin.Deactivate(ctx, "nobody")
	require.ErrorIs(t, err, service.ErrSubjectNotFound)
	require.ErrorIs(t, f.admin.Reactivate(ctx, ""), service.ErrSubjectNotFound)
}

func TestAdmin_ListSessionsAndSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)
	f.clock.Set(t0.Add(time.Minute))
	_, err = f.sessions.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)

	recs, err := f.admin.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.True(t, recs[0].IsActive())
	require.False(t, recs[1].IsActive())

	f.clock.Set(t0.Add(11 * time.Hour))
	n, err := f.admin.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestAdmin_DeactivatedSince(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	acct, err := f.login.CreateAccount(ctx, "erin", "s3cret-pass", domain.RoleUser, nil)
	require.NoError(t, err)

	_, ok, err := f.admin.DeactivatedSince(ctx, acct.SubjectID)
	require.NoError(t, err)
	require.False(t, ok)

	f.clock.Set(t0.Add(time.Hour))
	_, err = f.admin.Deactivate(ctx, acct.SubjectID)
	require.NoError(t, err)

	at, ok, err := f.admin.DeactivatedSince(ctx, acct.SubjectID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, t0.Add(time.Hour), at)

	require.NoError(t, f.admin.Reactivate(ctx, acct.SubjectID))
	_, ok, err = f.admin.DeactivatedSince(ctx, acct.SubjectID)
	require.NoError(t, err)
	require.False(t, ok)

	// Subjects without an account are never deactivated.
	_, ok, err = f.admin.DeactivatedSince(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}
