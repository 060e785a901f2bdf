package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one sliding-window check. CurrentCount is the
// number of events that were already inside the window before this call
// recorded its own event; Limit echoes the window's configured ceiling.
type Result struct {
	Allowed      bool
	Limit        int64
	Remaining    int64
	ResetInMs    int64
	CurrentCount int64
}

// Limiter counts events per key inside a moving window. A call records its
// event only when the window still has room, so denied calls do not extend
// the lockout; Allowed reports whether there was room. Implementations back
// the window with the shared store or with process memory, selected at
// construction.
//
//go:generate mockery --name=Limiter --dir=. --output=./mocks --filename=limiter_mock.go --case=underscore --with-expecter
type Limiter interface {
	Check(ctx context.Context, key string, windowMs, maxEvents int64) (*Result, error)
}

type LimiterOpts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

func (o *LimiterOpts) timeProvider() func() time.Time {
	if o != nil && o.TimeProvider != nil {
		return o.TimeProvider
	}
	return time.Now
}

func (o *LimiterOpts) uuidProvider() func() uuid.UUID {
	if o != nil && o.UuidProvider != nil {
		return o.UuidProvider
	}
	return uuid.New
}

func validateCheckInput(key string, windowMs, maxEvents int64) error {
	if key == "" {
		return fmt.Errorf("rate limit key must not be empty")
	}
	if windowMs <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %dms", windowMs)
	}
	if maxEvents <= 0 {
		return fmt.Errorf("rate limit max events must be positive, got %d", maxEvents)
	}
	return nil
}

func buildResult(countBefore, oldestMs, nowMs, windowMs, maxEvents int64) *Result {
	remaining := maxEvents - countBefore - 1
	if remaining < 0 {
		remaining = 0
	}
	resetInMs := oldestMs + windowMs - nowMs
	if oldestMs == 0 || resetInMs < 0 {
		resetInMs = windowMs
	}
	return &Result{
		Allowed:      countBefore < maxEvents,
		Limit:        maxEvents,
		Remaining:    remaining,
		ResetInMs:    resetInMs,
		CurrentCount: countBefore,
	}
}

// failOpenResult is returned when the store cannot be reached: the request
// passes and the window is treated as empty.
func failOpenResult(windowMs, maxEvents int64) *Result {
	return &Result{
		Allowed:      true,
		Limit:        maxEvents,
		Remaining:    maxEvents - 1,
		ResetInMs:    windowMs,
		CurrentCount: 0,
	}
}

func windowTTL(windowMs int64) time.Duration {
	seconds := (windowMs + 999) / 1000
	return time.Duration(seconds) * time.Second
}
