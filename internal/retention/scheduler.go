package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/domain"
)

// Purger deactivates history entries older than days.
type Purger interface {
	PurgeHistory(ctx context.Context, days int) (domain.PurgeResult, error)
}

// Guard keeps more than one instance from purging in the same tick.
// Acquire returns ok=false when another holder has it.
type Guard interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Scheduler runs the history purge on a ticker. It runs once right after
// Start, then every Interval until Stop.
type Scheduler struct {
	Purger   Purger
	Guard    Guard
	Interval time.Duration
	Days     int
	Timeout  time.Duration

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(purger Purger, guard Guard, interval time.Duration, days int, logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		Purger:   purger,
		Guard:    guard,
		Interval: interval,
		Days:     days,
		Timeout:  30 * time.Second,
		log:      logger.WithField("module", "retention"),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.log.Info("history purge scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.WithField("interval", s.Interval.String()).WithField("days", s.Days).Info("history purge scheduler started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("history purge scheduler stopped")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunOnce(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce performs a single guarded purge. It reports whether this call
// did the purge.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if s.Guard != nil {
		release, ok, err := s.Guard.Acquire(ctx)
		if err != nil {
			s.log.WithError(err).Warn("history purge guard failed")
			return false
		}
		if !ok {
			s.log.Debug("history purge running elsewhere; skipping")
			return false
		}
		defer release()
	}

	result, err := s.Purger.PurgeHistory(ctx, s.Days)
	if err != nil {
		s.log.WithError(err).Error("history purge failed")
		return false
	}
	s.log.WithFields(logrus.Fields{
		"cutoff":      result.Cutoff,
		"deactivated": result.Deactivated,
	}).Debug("history purge finished")
	return true
}

// RedisGuard holds a redislock lease for the length of one purge.
type RedisGuard struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewRedisGuard(client redislock.RedisClient, key string, ttl time.Duration, logger logrus.FieldLogger) *RedisGuard {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisGuard{
		locker: redislock.New(client),
		key:    key,
		ttl:    ttl,
		log:    logger.WithField("module", "retention"),
	}
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(), bool, error) {
	lock, err := g.locker.Obtain(ctx, g.key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	release := func() {
		// a fresh context so a timed-out purge still frees the lease
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.log.WithError(err).Warn("failed to release purge lock")
		}
	}
	return release, true, nil
}
