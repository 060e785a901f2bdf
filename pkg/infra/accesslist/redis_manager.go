package accesslist

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
)

const (
	allowSetKey   = "ward:allow"
	denyKeyPrefix = "ward:deny:"
	denyIndexKey  = "ward:deny:index"
)

func denyKey(identity string) string {
	return denyKeyPrefix + identity
}

type redisManager struct {
	redis        *redis.Client
	breaker      breaker.CircuitBreaker
	logger       *logrus.Logger
	localAllow   localAllowSet
	defaultBan   time.Duration
	storeTimeout time.Duration
	timeProvider func() time.Time
}

// NewRedisManager builds the store-backed access list. Deny entries live in
// one hash per identity with a matching TTL, plus an expiry-ordered index for
// listing and sweeping.
func NewRedisManager(
	redisClient *redis.Client,
	cb breaker.CircuitBreaker,
	logger *logrus.Logger,
	cfg Config,
	opts *ManagerOpts,
) Manager {
	return &redisManager{
		redis:        redisClient,
		breaker:      cb,
		logger:       logger,
		localAllow:   newLocalAllowSet(cfg.LocalAllow),
		defaultBan:   cfg.DefaultBan,
		storeTimeout: cfg.StoreTimeout,
		timeProvider: opts.timeProvider(),
	}
}

func (m *redisManager) IsLocallyAllowed(identity string) bool {
	return m.localAllow.contains(identity)
}

func (m *redisManager) IsAllowed(ctx context.Context, identity string) bool {
	if identity == "" {
		return false
	}
	if m.localAllow.contains(identity) {
		return true
	}

	var member bool
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		res, resErr := m.redis.SIsMember(opCtx, allowSetKey, identity).Result()
		if resErr != nil {
			return resErr
		}
		member = res
		return nil
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Warn("allow list unreachable, treating identity as not allowed")
		return false
	}
	return member
}

func (m *redisManager) IsDenied(ctx context.Context, identity string) bool {
	if identity == "" {
		return false
	}
	if m.IsAllowed(ctx, identity) {
		return false
	}

	entry, err := m.GetDenyEntry(ctx, identity)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		}).Warn("deny list unreachable, failing open")
		return false
	}
	return entry.Active(m.timeProvider())
}

func (m *redisManager) GetDenyEntry(ctx context.Context, identity string) (*DenyEntry, error) {
	if identity == "" {
		return nil, nil
	}

	var fields map[string]string
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		res, resErr := m.redis.HGetAll(opCtx, denyKey(identity)).Result()
		if resErr != nil {
			return resErr
		}
		fields = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read deny entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry := parseDenyFields(identity, fields)
	if !entry.Active(m.timeProvider()) {
		return nil, nil
	}
	return entry, nil
}

func (m *redisManager) Deny(ctx context.Context, identity, reason string, duration time.Duration) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	if m.IsAllowed(ctx, identity) {
		return false, nil
	}
	if duration <= 0 {
		duration = m.defaultBan
	}

	now := m.timeProvider()
	expiresAt := now.Add(duration)

	existing, err := m.GetDenyEntry(ctx, identity)
	if err != nil {
		return false, err
	}
	createdAt := now
	if existing != nil {
		if !existing.ExpiresAt.Before(expiresAt) {
			// Re-denying with a shorter or equal horizon must not cut an
			// active block short.
			return true, nil
		}
		createdAt = existing.CreatedAt
	}

	err = m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		pipe := m.redis.TxPipeline()
		pipe.HSet(opCtx, denyKey(identity),
			"identity", identity,
			"reason", reason,
			"created_at", strconv.FormatInt(createdAt.UnixMilli(), 10),
			"expires_at", strconv.FormatInt(expiresAt.UnixMilli(), 10),
		)
		pipe.PExpireAt(opCtx, denyKey(identity), expiresAt)
		pipe.ZAdd(opCtx, denyIndexKey, &redis.Z{
			Score:  float64(expiresAt.UnixMilli()),
			Member: identity,
		})
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("failed to write deny entry: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"identity":   identity,
		"reason":     reason,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Info("identity denied")
	return true, nil
}

func (m *redisManager) Undeny(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		pipe := m.redis.TxPipeline()
		pipe.Del(opCtx, denyKey(identity))
		pipe.ZRem(opCtx, denyIndexKey, identity)
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to remove deny entry: %w", err)
	}
	return nil
}

func (m *redisManager) Allow(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		pipe := m.redis.TxPipeline()
		pipe.SAdd(opCtx, allowSetKey, identity)
		pipe.Del(opCtx, denyKey(identity))
		pipe.ZRem(opCtx, denyIndexKey, identity)
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to write allow entry: %w", err)
	}

	m.logger.WithField("identity", identity).Info("identity allowed")
	return nil
}

func (m *redisManager) Unallow(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	if m.localAllow.contains(identity) {
		return nil
	}

	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		return m.redis.SRem(opCtx, allowSetKey, identity).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to remove allow entry: %w", err)
	}
	return nil
}

func (m *redisManager) ListDenied(ctx context.Context) ([]DenyEntry, error) {
	now := m.timeProvider()

	var identities []string
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		res, resErr := m.redis.ZRangeByScore(opCtx, denyIndexKey, &redis.ZRangeBy{
			Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
			Max: "+inf",
		}).Result()
		if resErr != nil {
			return resErr
		}
		identities = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list deny entries: %w", err)
	}
	if len(identities) == 0 {
		return []DenyEntry{}, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(identities))
	err = m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		pipe := m.redis.TxPipeline()
		for i, identity := range identities {
			cmds[i] = pipe.HGetAll(opCtx, denyKey(identity))
		}
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read deny entries: %w", err)
	}

	entries := make([]DenyEntry, 0, len(identities))
	for i, identity := range identities {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		entry := parseDenyFields(identity, fields)
		if entry.Active(now) {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func (m *redisManager) ListAllowed(ctx context.Context) ([]string, error) {
	var identities []string
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		res, resErr := m.redis.SMembers(opCtx, allowSetKey).Result()
		if resErr != nil {
			return resErr
		}
		identities = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list allow entries: %w", err)
	}

	sort.Strings(identities)
	return identities, nil
}

func (m *redisManager) Counts(ctx context.Context) (int64, int64, error) {
	now := m.timeProvider()

	var denied, allowed int64
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		pipe := m.redis.TxPipeline()
		deniedCmd := pipe.ZCount(opCtx, denyIndexKey, "("+strconv.FormatInt(now.UnixMilli(), 10), "+inf")
		allowedCmd := pipe.SCard(opCtx, allowSetKey)
		if _, execErr := pipe.Exec(opCtx); execErr != nil {
			return execErr
		}
		denied = deniedCmd.Val()
		allowed = allowedCmd.Val()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count access list entries: %w", err)
	}
	return denied, allowed, nil
}

func (m *redisManager) Sweep(ctx context.Context) (int64, error) {
	nowMs := m.timeProvider().UnixMilli()

	var expired []string
	err := m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		res, resErr := m.redis.ZRangeByScore(opCtx, denyIndexKey, &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(nowMs, 10),
		}).Result()
		if resErr != nil {
			return resErr
		}
		expired = res
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan deny index: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	err = m.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, m.storeTimeout)
		defer cancel()

		keys := make([]string, len(expired))
		for i, identity := range expired {
			keys[i] = denyKey(identity)
		}

		pipe := m.redis.TxPipeline()
		pipe.Del(opCtx, keys...)
		pipe.ZRemRangeByScore(opCtx, denyIndexKey, "-inf", strconv.FormatInt(nowMs, 10))
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep deny index: %w", err)
	}
	return int64(len(expired)), nil
}

func parseDenyFields(identity string, fields map[string]string) *DenyEntry {
	createdMs, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil
	}
	return &DenyEntry{
		Identity:  identity,
		Reason:    fields["reason"],
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}
}
