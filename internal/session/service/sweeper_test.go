package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RevokesExpiredAtEightDays(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Issued a week and a day ago: refresh expired at t-1d.
	_, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	n, err := f.sweeper.RunSweep(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))

	recs, err := f.store.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusRevoked, recs[0].Status)

	// Idempotent.
	n, err = f.sweeper.RunSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSweeper_LeavesLiveSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	n, err := f.sweeper.RunSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 1, f.activeCount(t, "u1"))
}

func TestSweeper_Purge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	used, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)
	f.clock.Set(t0.Add(time.Hour))
	_, err = f.sessions.Validate(ctx, used.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Revoke(ctx, used.AccessToken, ""))

	u2 := domain.Principal{SubjectID: "u2", Role: domain.RoleUser}
	unused, err := f.sessions.Issue(ctx, u2)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Revoke(ctx, unused.AccessToken, ""))

	// Inside retention both stay, used or not.
	f.clock.Set(t0.Add(10 * 24 * time.Hour))
	n, err := f.sweeper.RunPurge(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	// Thirty days past revocation both go.
	f.clock.Set(t0.Add(32 * 24 * time.Hour))
	n, err = f.sweeper.RunPurge(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	recs, err := f.store.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestSweeper_PurgeKeepsJustRevoked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Minute))
	require.NoError(t, f.sessions.Revoke(ctx, pair.AccessToken, ""))

	f.clock.Set(t0.Add(2 * time.Minute))
	n, err := f.sweeper.RunPurge(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	recs, err := f.admin.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusRevoked, recs[0].Status)
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.sessions.Issue(ctx, u1)
	require.NoError(t, err)
	f.clock.Set(t0.Add(time.Hour))
	_, err = f.sessions.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)

	f.clock.Set(t0.Add(8 * 24 * time.Hour))
	f.sweeper.SweepInterval = time.Hour
	f.sweeper.Start()
	f.sweeper.Stop()
	f.sweeper.Stop()

	// The run on start swept it; the purge kept it because it was used
	// inside the retention window.
	recs, err := f.store.Credentials().ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusRevoked, recs[0].Status)
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	done := make(chan struct{})
	go func() {
		f.sweeper.Stop()
		f.sweeper.Stop()
		// A stopped sweeper does not start again.
		f.sweeper.Start()
		f.sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a sweeper that was never started")
	}
}
