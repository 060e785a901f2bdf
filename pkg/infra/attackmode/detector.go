package attackmode

import (
	"context"
	"strconv"
	"time"
)

const (
	stateKey        = "ward:attack:state"
	bucketKeyPrefix = "ward:attack:rpm:"

	// minuteLayout buckets counters by UTC minute so keys rotate on their own.
	minuteLayout = "200601021504"
)

func bucketKey(now time.Time) string {
	return bucketKeyPrefix + now.UTC().Format(minuteLayout)
}

// State is the fleet-wide attack-mode snapshot for one request.
type State struct {
	Active       bool
	StartedAt    *time.Time
	RequestCount int64
}

// Detector tracks fleet-wide request volume and flips attack mode with
// hysteresis: entry above HighThreshold, exit below HighThreshold*ExitRatio.
//
//go:generate mockery --name=Detector --case=underscore
type Detector interface {
	// RecordRequest counts the request in the current minute bucket and
	// returns the resulting state. It never fails the request: when the
	// store is unreachable it reports normal traffic.
	RecordRequest(ctx context.Context) State
	// CurrentState reads the state without counting a request.
	CurrentState(ctx context.Context) State
}

type Config struct {
	HighThreshold int64
	ExitRatio     float64
	BucketTTL     time.Duration
	FlagTTL       time.Duration
	StoreTimeout  time.Duration
}

func (c Config) highThreshold() int64 {
	if c.HighThreshold <= 0 {
		return 1000
	}
	return c.HighThreshold
}

func (c Config) lowThreshold() int64 {
	ratio := c.ExitRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return int64(float64(c.highThreshold()) * ratio)
}

func (c Config) bucketTTL() time.Duration {
	if c.BucketTTL <= 0 {
		return 2 * time.Minute
	}
	return c.BucketTTL
}

func (c Config) flagTTL() time.Duration {
	if c.FlagTTL <= 0 {
		return 5 * time.Minute
	}
	return c.FlagTTL
}

type DetectorOpts struct {
	TimeProvider func() time.Time
}

func (o *DetectorOpts) timeProvider() func() time.Time {
	if o == nil || o.TimeProvider == nil {
		return time.Now
	}
	return o.TimeProvider
}

func parseStartedAt(fields map[string]string, fallback time.Time) *time.Time {
	ms, err := strconv.ParseInt(fields["started_at"], 10, 64)
	if err != nil {
		started := fallback.UTC()
		return &started
	}
	started := time.UnixMilli(ms).UTC()
	return &started
}
