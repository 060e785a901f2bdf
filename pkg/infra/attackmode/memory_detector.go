package attackmode

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryDetector is the single-instance fallback. It keeps only the current
// and previous minute buckets, dropping older ones as the key rotates.
type memoryDetector struct {
	logger       *logrus.Logger
	cfg          Config
	timeProvider func() time.Time

	mu        sync.Mutex
	buckets   map[string]int64
	startedAt *time.Time
	flagSeen  time.Time
}

func NewMemoryDetector(logger *logrus.Logger, cfg Config, opts *DetectorOpts) Detector {
	return &memoryDetector{
		logger:       logger,
		cfg:          cfg,
		timeProvider: opts.timeProvider(),
		buckets:      make(map[string]int64),
	}
}

func (d *memoryDetector) RecordRequest(_ context.Context) State {
	now := d.timeProvider()
	key := bucketKey(now)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(now)
	d.buckets[key]++
	count := d.buckets[key]
	d.expireFlagLocked(now)

	switch {
	case d.startedAt == nil && count > d.cfg.highThreshold():
		started := now.UTC()
		d.startedAt = &started
		d.flagSeen = now
		d.logger.WithFields(logrus.Fields{
			"requests_per_minute": count,
			"threshold":           d.cfg.highThreshold(),
		}).Error("attack mode activated")
		return State{Active: true, StartedAt: &started, RequestCount: count}
	case d.startedAt != nil && count < d.cfg.lowThreshold():
		d.startedAt = nil
		d.logger.WithFields(logrus.Fields{
			"requests_per_minute": count,
			"threshold":           d.cfg.lowThreshold(),
		}).Info("attack mode cleared, traffic back to normal")
		return State{RequestCount: count}
	case d.startedAt != nil:
		d.flagSeen = now
		return State{Active: true, StartedAt: d.startedAt, RequestCount: count}
	default:
		return State{RequestCount: count}
	}
}

func (d *memoryDetector) CurrentState(_ context.Context) State {
	now := d.timeProvider()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.expireFlagLocked(now)
	count := d.buckets[bucketKey(now)]
	if d.startedAt == nil {
		return State{RequestCount: count}
	}
	return State{Active: true, StartedAt: d.startedAt, RequestCount: count}
}

// pruneLocked drops buckets older than the previous minute.
func (d *memoryDetector) pruneLocked(now time.Time) {
	if len(d.buckets) <= 2 {
		return
	}
	current := bucketKey(now)
	previous := bucketKey(now.Add(-time.Minute))
	for key := range d.buckets {
		if key != current && key != previous {
			delete(d.buckets, key)
		}
	}
}

// expireFlagLocked mirrors the store flag's TTL: a flag that has not been
// refreshed within FlagTTL clears itself.
func (d *memoryDetector) expireFlagLocked(now time.Time) {
	if d.startedAt != nil && now.Sub(d.flagSeen) > d.cfg.flagTTL() {
		d.startedAt = nil
	}
}
