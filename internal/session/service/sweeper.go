package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/telemetry"
)

const (
	DefaultSweepInterval   = time.Hour
	DefaultPurgeInterval   = 24 * time.Hour
	DefaultPurgeRetention  = 30 * 24 * time.Hour
	defaultSweeperDeadline = 30 * time.Second
)

// Sweeper periodically revokes expired credentials and deletes revoked
// ones that have sat unused past the retention window. It runs alongside
// request traffic; every step is a single idempotent statement.
type Sweeper struct {
	Store   store.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	SweepInterval time.Duration
	PurgeInterval time.Duration
	Retention     time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewSweeper creates a sweeper. Non-positive durations fall back to the
// defaults: sweep hourly, purge daily, keep revoked records 30 days.
func NewSweeper(s store.Store, logger *slog.Logger, sweepInterval, purgeInterval, retention time.Duration) *Sweeper {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}
	if retention <= 0 {
		retention = DefaultPurgeRetention
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		Store:         s,
		Logger:        logger,
		SweepInterval: sweepInterval,
		PurgeInterval: purgeInterval,
		Retention:     retention,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start launches the background worker. It sweeps and purges once right
// away and then on each interval. Call Stop to shut it down. Start is a
// no-op on a running or stopped sweeper.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.run()
	s.Logger.Info("sweeper started",
		"sweep_interval", s.SweepInterval,
		"purge_interval", s.PurgeInterval,
		"retention", s.Retention,
	)
}

// Stop shuts the worker down and waits for an in-progress run to finish.
// It returns at once if Start was never called, and is safe to repeat.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	started := s.started
	s.stopped = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	if !started {
		return
	}
	<-s.doneCh
	s.Logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	sweepTicker := time.NewTicker(s.SweepInterval)
	defer sweepTicker.Stop()
	purgeTicker := time.NewTicker(s.PurgeInterval)
	defer purgeTicker.Stop()

	s.tick(s.RunSweep)
	s.tick(s.RunPurge)

	for {
		select {
		case <-sweepTicker.C:
			s.tick(s.RunSweep)
		case <-purgeTicker.C:
			s.tick(s.RunPurge)
		case <-s.stopCh:
			return
		}
	}
}

// tick runs one step with a deadline. Errors were already logged; the next
// tick is the retry.
func (s *Sweeper) tick(step func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSweeperDeadline)
	defer cancel()
	_, _ = step(ctx)
}

// RunSweep revokes every active record whose access or refresh token has
// expired and returns how many it revoked.
func (s *Sweeper) RunSweep(ctx context.Context) (int64, error) {
	n, err := s.Store.Credentials().SweepExpired(ctx, s.now())
	if err != nil {
		s.Logger.Error("failed to sweep expired credentials", "error", err)
		return 0, err
	}
	s.Metrics.Swept(ctx, n)
	s.Logger.Info("swept expired credentials", "count", n)
	return n, nil
}

// RunPurge deletes records revoked more than Retention ago and returns
// how many it deleted.
func (s *Sweeper) RunPurge(ctx context.Context) (int64, error) {
	threshold := s.now().Add(-s.Retention)
	n, err := s.Store.Credentials().PurgeStale(ctx, threshold)
	if err != nil {
		s.Logger.Error("failed to purge stale credentials", "error", err)
		return 0, err
	}
	s.Metrics.Purged(ctx, n)
	s.Logger.Info("purged stale credentials", "count", n, "threshold", threshold)
	return n, nil
}
