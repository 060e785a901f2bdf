package attackmode

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
)

type redisDetector struct {
	redis        *redis.Client
	breaker      breaker.CircuitBreaker
	logger       *logrus.Logger
	cfg          Config
	timeProvider func() time.Time
}

// NewRedisDetector builds the store-backed detector. The per-minute counter
// and the flag hash are separate keys: the counter rotates by key name while
// the flag carries its own TTL so a crashed process cannot leave the fleet
// stuck in attack mode.
func NewRedisDetector(
	redisClient *redis.Client,
	cb breaker.CircuitBreaker,
	logger *logrus.Logger,
	cfg Config,
	opts *DetectorOpts,
) Detector {
	return &redisDetector{
		redis:        redisClient,
		breaker:      cb,
		logger:       logger,
		cfg:          cfg,
		timeProvider: opts.timeProvider(),
	}
}

func (d *redisDetector) RecordRequest(ctx context.Context) State {
	now := d.timeProvider()

	var (
		countCmd *redis.IntCmd
		flagCmd  *redis.StringStringMapCmd
	)
	err := d.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, d.cfg.StoreTimeout)
		defer cancel()

		pipe := d.redis.TxPipeline()
		countCmd = pipe.Incr(opCtx, bucketKey(now))
		pipe.Expire(opCtx, bucketKey(now), d.cfg.bucketTTL())
		flagCmd = pipe.HGetAll(opCtx, stateKey)
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		d.logger.WithField("error", err.Error()).Warn("attack detector store unreachable, assuming normal traffic")
		return State{}
	}

	count := countCmd.Val()
	flag := flagCmd.Val()
	active := len(flag) > 0

	switch {
	case !active && count > d.cfg.highThreshold():
		return d.enter(ctx, now, count)
	case active && count < d.cfg.lowThreshold():
		d.exit(ctx, count)
		return State{RequestCount: count}
	case active:
		d.refreshFlag(ctx)
		return State{Active: true, StartedAt: parseStartedAt(flag, now), RequestCount: count}
	default:
		return State{RequestCount: count}
	}
}

func (d *redisDetector) CurrentState(ctx context.Context) State {
	now := d.timeProvider()

	var (
		count int64
		flag  map[string]string
	)
	err := d.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, d.cfg.StoreTimeout)
		defer cancel()

		res, resErr := d.redis.Get(opCtx, bucketKey(now)).Result()
		if resErr != nil && !errors.Is(resErr, redis.Nil) {
			return resErr
		}
		if resErr == nil {
			count, _ = strconv.ParseInt(res, 10, 64)
		}

		flagRes, resErr := d.redis.HGetAll(opCtx, stateKey).Result()
		if resErr != nil {
			return resErr
		}
		flag = flagRes
		return nil
	})
	if err != nil {
		d.logger.WithField("error", err.Error()).Warn("attack detector store unreachable, assuming normal traffic")
		return State{}
	}

	if len(flag) == 0 {
		return State{RequestCount: count}
	}
	return State{Active: true, StartedAt: parseStartedAt(flag, now), RequestCount: count}
}

// enter flips the flag on. HSetNX keeps startedAt from the instance that won
// the race; everyone else inherits it.
func (d *redisDetector) enter(ctx context.Context, now time.Time, count int64) State {
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)

	var (
		setCmd *redis.BoolCmd
		getCmd *redis.StringCmd
	)
	err := d.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, d.cfg.StoreTimeout)
		defer cancel()

		pipe := d.redis.TxPipeline()
		setCmd = pipe.HSetNX(opCtx, stateKey, "started_at", nowMs)
		getCmd = pipe.HGet(opCtx, stateKey, "started_at")
		pipe.Expire(opCtx, stateKey, d.cfg.flagTTL())
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		d.logger.WithField("error", err.Error()).Warn("failed to persist attack mode flag")
		started := now.UTC()
		return State{Active: true, StartedAt: &started, RequestCount: count}
	}

	if setCmd.Val() {
		d.logger.WithFields(logrus.Fields{
			"requests_per_minute": count,
			"threshold":           d.cfg.highThreshold(),
		}).Error("attack mode activated")
	}

	startedAt := parseStartedAt(map[string]string{"started_at": getCmd.Val()}, now)
	return State{Active: true, StartedAt: startedAt, RequestCount: count}
}

func (d *redisDetector) exit(ctx context.Context, count int64) {
	var deleted int64
	err := d.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, d.cfg.StoreTimeout)
		defer cancel()

		res, resErr := d.redis.Del(opCtx, stateKey).Result()
		if resErr != nil {
			return resErr
		}
		deleted = res
		return nil
	})
	if err != nil {
		d.logger.WithField("error", err.Error()).Warn("failed to clear attack mode flag")
		return
	}

	if deleted > 0 {
		d.logger.WithFields(logrus.Fields{
			"requests_per_minute": count,
			"threshold":           d.cfg.lowThreshold(),
		}).Info("attack mode cleared, traffic back to normal")
	}
}

// refreshFlag keeps the flag alive while the attack is ongoing.
func (d *redisDetector) refreshFlag(ctx context.Context) {
	err := d.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, d.cfg.StoreTimeout)
		defer cancel()

		return d.redis.Expire(opCtx, stateKey, d.cfg.flagTTL()).Err()
	})
	if err != nil {
		d.logger.WithField("error", err.Error()).Debug("failed to refresh attack mode flag")
	}
}
