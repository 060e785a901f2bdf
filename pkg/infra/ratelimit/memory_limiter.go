package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memWindow struct {
	events   []int64
	windowMs int64
}

// memoryLimiter keeps windows in process memory. It serves single-instance
// deployments and tests; expiry is lazy on access, and Sweep evicts keys that
// were never touched again.
type memoryLimiter struct {
	mu           sync.Mutex
	windows      map[string]*memWindow
	timeProvider func() time.Time
}

func NewMemoryLimiter(opts *LimiterOpts) Limiter {
	return &memoryLimiter{
		windows:      make(map[string]*memWindow),
		timeProvider: opts.timeProvider(),
	}
}

func (m *memoryLimiter) Check(_ context.Context, key string, windowMs, maxEvents int64) (*Result, error) {
	if err := validateCheckInput(key, windowMs, maxEvents); err != nil {
		return nil, err
	}

	nowMs := m.timeProvider().UnixMilli()
	windowStart := nowMs - windowMs

	m.mu.Lock()
	defer m.mu.Unlock()

	var events []int64
	if w, ok := m.windows[key]; ok {
		events = w.events
	}
	kept := events[:0]
	for _, ts := range events {
		if ts >= windowStart {
			kept = append(kept, ts)
		}
	}

	countBefore := int64(len(kept))
	// Record only when the window still has room: a denied event must not
	// keep pushing the client's window forward.
	if countBefore < maxEvents {
		kept = append(kept, nowMs)
	}
	if len(kept) == 0 {
		delete(m.windows, key)
	} else {
		m.windows[key] = &memWindow{events: kept, windowMs: windowMs}
	}

	var oldestMs int64
	if len(kept) > 0 {
		oldestMs = kept[0]
	}
	return buildResult(countBefore, oldestMs, nowMs, windowMs, maxEvents), nil
}

// Sweep drops every window whose events have all aged out, so keys touched
// once and abandoned do not accumulate.
func (m *memoryLimiter) Sweep(_ context.Context) (int64, error) {
	nowMs := m.timeProvider().UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, w := range m.windows {
		newest := int64(0)
		for _, ts := range w.events {
			if ts > newest {
				newest = ts
			}
		}
		if newest < nowMs-w.windowMs {
			delete(m.windows, key)
			removed++
		}
	}
	return removed, nil
}
