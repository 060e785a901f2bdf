package accesslist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweepable is one lazily-expiring component the sweeper prunes.
type Sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper periodically prunes expired deny entries so the expiry index stays
// small between per-key TTL evictions. Every pass is idempotent.
type Sweeper struct {
	target   Sweepable
	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func NewSweeper(target Sweepable, logger *logrus.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		target:   target,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed, err := s.target.Sweep(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("expiry sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("expiry sweep pruned deny entries")
	}
}

// Stop halts the sweep loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
}
