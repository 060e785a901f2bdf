package accesslist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryManager is the single-instance fallback used when no shared store is
// configured. Expired entries linger until a read or sweep touches them.
type memoryManager struct {
	mu           sync.RWMutex
	allow        map[string]struct{}
	deny         map[string]DenyEntry
	localAllow   localAllowSet
	defaultBan   time.Duration
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func NewMemoryManager(logger *logrus.Logger, cfg Config, opts *ManagerOpts) Manager {
	return &memoryManager{
		allow:        make(map[string]struct{}),
		deny:         make(map[string]DenyEntry),
		localAllow:   newLocalAllowSet(cfg.LocalAllow),
		defaultBan:   cfg.DefaultBan,
		logger:       logger,
		timeProvider: opts.timeProvider(),
	}
}

func (m *memoryManager) IsLocallyAllowed(identity string) bool {
	return m.localAllow.contains(identity)
}

func (m *memoryManager) IsAllowed(_ context.Context, identity string) bool {
	if identity == "" {
		return false
	}
	if m.localAllow.contains(identity) {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.allow[identity]
	return ok
}

func (m *memoryManager) IsDenied(ctx context.Context, identity string) bool {
	if identity == "" || m.IsAllowed(ctx, identity) {
		return false
	}

	now := m.timeProvider()
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.deny[identity]
	return ok && entry.Active(now)
}

func (m *memoryManager) GetDenyEntry(_ context.Context, identity string) (*DenyEntry, error) {
	if identity == "" {
		return nil, nil
	}

	now := m.timeProvider()
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.deny[identity]
	if !ok || !entry.Active(now) {
		return nil, nil
	}
	return &entry, nil
}

func (m *memoryManager) Deny(_ context.Context, identity, reason string, duration time.Duration) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	if duration <= 0 {
		duration = m.defaultBan
	}

	now := m.timeProvider()
	expiresAt := now.Add(duration)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowedLocked(identity) {
		return false, nil
	}

	existing, ok := m.deny[identity]
	if ok && existing.Active(now) {
		if !existing.ExpiresAt.Before(expiresAt) {
			return true, nil
		}
		existing.Reason = reason
		existing.ExpiresAt = expiresAt
		m.deny[identity] = existing
		return true, nil
	}

	m.deny[identity] = DenyEntry{
		Identity:  identity,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	m.logger.WithFields(logrus.Fields{
		"identity":   identity,
		"reason":     reason,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Info("identity denied")
	return true, nil
}

func (m *memoryManager) Undeny(_ context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deny, identity)
	return nil
}

func (m *memoryManager) Allow(_ context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.allow[identity] = struct{}{}
	delete(m.deny, identity)

	m.logger.WithField("identity", identity).Info("identity allowed")
	return nil
}

func (m *memoryManager) Unallow(_ context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	if m.localAllow.contains(identity) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allow, identity)
	return nil
}

func (m *memoryManager) ListDenied(_ context.Context) ([]DenyEntry, error) {
	now := m.timeProvider()

	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]DenyEntry, 0, len(m.deny))
	for _, entry := range m.deny {
		if entry.Active(now) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity < entries[j].Identity
	})
	return entries, nil
}

func (m *memoryManager) ListAllowed(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identities := make([]string, 0, len(m.allow))
	for identity := range m.allow {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	return identities, nil
}

func (m *memoryManager) Counts(_ context.Context) (int64, int64, error) {
	now := m.timeProvider()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var denied int64
	for _, entry := range m.deny {
		if entry.Active(now) {
			denied++
		}
	}
	return denied, int64(len(m.allow)), nil
}

func (m *memoryManager) Sweep(_ context.Context) (int64, error) {
	now := m.timeProvider()

	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for identity, entry := range m.deny {
		if !entry.Active(now) {
			delete(m.deny, identity)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryManager) allowedLocked(identity string) bool {
	if m.localAllow.contains(identity) {
		return true
	}
	_, ok := m.allow[identity]
	return ok
}
