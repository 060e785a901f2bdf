package accesslist

import (
	"context"
	"errors"
	"time"
)

// DenyEntry is one active block against a client identity.
type DenyEntry struct {
	Identity  string    `json:"identity"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the entry is still in force at now.
func (e *DenyEntry) Active(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

var ErrEmptyIdentity = errors.New("identity cannot be empty")

// Manager keeps the allow and deny sets. An allowed identity can never be
// denied at the same time: allow checks run before, and short-circuit, every
// deny check and deny write.
//
//go:generate mockery --name=Manager --case=underscore
type Manager interface {
	// IsLocallyAllowed checks only the process-local always-allow set and
	// never touches the store.
	IsLocallyAllowed(identity string) bool
	IsAllowed(ctx context.Context, identity string) bool
	IsDenied(ctx context.Context, identity string) bool
	GetDenyEntry(ctx context.Context, identity string) (*DenyEntry, error)
	// Deny upserts a block for the identity. It reports false without error
	// when the identity is allowed. A non-positive duration selects the
	// configured default. An existing block is only ever extended, never
	// shortened.
	Deny(ctx context.Context, identity, reason string, duration time.Duration) (bool, error)
	Undeny(ctx context.Context, identity string) error
	// Allow adds the identity to the store-backed allow set and drops any
	// block it currently carries.
	Allow(ctx context.Context, identity string) error
	Unallow(ctx context.Context, identity string) error
	ListDenied(ctx context.Context) ([]DenyEntry, error)
	ListAllowed(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (denied int64, allowed int64, err error)
	// Sweep drops entries whose expiry has passed and reports how many it
	// removed. Per-key TTLs already bound stale data, so sweeping is purely
	// about prompt cleanup of the expiry index.
	Sweep(ctx context.Context) (int64, error)
}

type Config struct {
	LocalAllow   []string
	DefaultBan   time.Duration
	StoreTimeout time.Duration
}

type ManagerOpts struct {
	TimeProvider func() time.Time
}

func (o *ManagerOpts) timeProvider() func() time.Time {
	if o == nil || o.TimeProvider == nil {
		return time.Now
	}
	return o.TimeProvider
}

// localAllowSet is read-only after construction, so lookups are safe from any
// goroutine without locking.
type localAllowSet map[string]struct{}

func newLocalAllowSet(identities []string) localAllowSet {
	set := make(localAllowSet, len(identities))
	for _, identity := range identities {
		if identity == "" {
			continue
		}
		set[identity] = struct{}{}
	}
	return set
}

func (s localAllowSet) contains(identity string) bool {
	_, ok := s[identity]
	return ok
}
