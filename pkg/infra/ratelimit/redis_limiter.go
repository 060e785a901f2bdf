package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
)

type redisLimiter struct {
	redis        *redis.Client
	breaker      breaker.CircuitBreaker
	logger       *logrus.Logger
	storeTimeout time.Duration
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

// NewRedisLimiter builds the store-backed limiter. Purge and count run in one
// TxPipeline; the event is recorded in a second pipeline only when the window
// still has room, so denied calls never extend a client's own lockout.
func NewRedisLimiter(
	redisClient *redis.Client,
	cb breaker.CircuitBreaker,
	logger *logrus.Logger,
	storeTimeout time.Duration,
	opts *LimiterOpts,
) Limiter {
	return &redisLimiter{
		redis:        redisClient,
		breaker:      cb,
		logger:       logger,
		storeTimeout: storeTimeout,
		timeProvider: opts.timeProvider(),
		uuidProvider: opts.uuidProvider(),
	}
}

func (r *redisLimiter) Check(ctx context.Context, key string, windowMs, maxEvents int64) (*Result, error) {
	if err := validateCheckInput(key, windowMs, maxEvents); err != nil {
		return nil, err
	}

	now := r.timeProvider()
	nowMs := now.UnixMilli()
	windowStart := nowMs - windowMs

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	err := r.breaker.Execute(func() error {
		storeCtx, cancel := common.DetachedContext(ctx, r.storeTimeout)
		defer cancel()

		pipe := r.redis.TxPipeline()
		pipe.ZRemRangeByScore(storeCtx, key, "0", "("+strconv.FormatInt(windowStart, 10))
		count = pipe.ZCard(storeCtx, key)
		oldest = pipe.ZRangeWithScores(storeCtx, key, 0, 0)
		if _, execErr := pipe.Exec(storeCtx); execErr != nil {
			return execErr
		}

		// Record only when the window still has room: a denied event must not
		// keep pushing the client's window forward.
		if count.Val() >= maxEvents {
			return nil
		}
		member := fmt.Sprintf("%d:%s", nowMs, r.uuidProvider().String())
		record := r.redis.TxPipeline()
		record.ZAdd(storeCtx, key, &redis.Z{Score: float64(nowMs), Member: member})
		record.Expire(storeCtx, key, windowTTL(windowMs))
		_, execErr := record.Exec(storeCtx)
		return execErr
	})
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"key":        key,
			"window_ms":  windowMs,
			"max_events": maxEvents,
			"error":      err.Error(),
		}).Warn("rate limit store unreachable, failing open")
		return failOpenResult(windowMs, maxEvents), nil
	}

	countBefore := count.Val()

	var oldestMs int64
	if zs := oldest.Val(); len(zs) > 0 {
		oldestMs = int64(zs[0].Score)
	}

	return buildResult(countBefore, oldestMs, nowMs, windowMs, maxEvents), nil
}
