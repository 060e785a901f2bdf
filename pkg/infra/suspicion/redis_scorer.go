package suspicion

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
)

const suspectKeyPrefix = "ward:suspect:"

func recordKey(identity string) string {
	return suspectKeyPrefix + identity
}

func signalsKey(identity string) string {
	return recordKey(identity) + ":signals"
}

type redisScorer struct {
	rules        *RuleSet
	redis        *redis.Client
	breaker      breaker.CircuitBreaker
	denier       Denier
	logger       *logrus.Logger
	cfg          Config
	timeProvider func() time.Time
}

// NewRedisScorer builds the store-backed scorer. Each update runs as one
// TxPipeline so concurrent requests from the same identity cannot lose
// increments, and both record keys get their rolling TTL refreshed together.
func NewRedisScorer(
	rules *RuleSet,
	redisClient *redis.Client,
	cb breaker.CircuitBreaker,
	denier Denier,
	logger *logrus.Logger,
	cfg Config,
	opts *ScorerOpts,
) Scorer {
	return &redisScorer{
		rules:        rules,
		redis:        redisClient,
		breaker:      cb,
		denier:       denier,
		logger:       logger,
		cfg:          cfg,
		timeProvider: opts.timeProvider(),
	}
}

func (s *redisScorer) Evaluate(req Request) []Signal {
	return s.rules.Evaluate(req)
}

func (s *redisScorer) RecordSignals(ctx context.Context, identity string, signals []Signal) (*Record, error) {
	if identity == "" || len(signals) == 0 {
		return nil, nil
	}

	now := s.timeProvider()
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)
	names := Names(signals)
	members := make([]interface{}, len(names))
	for i, name := range names {
		members[i] = name
	}
	ttl := s.cfg.recordTTL()

	var (
		countCmd   *redis.IntCmd
		firstCmd   *redis.StringCmd
		membersCmd *redis.StringSliceCmd
	)
	err := s.breaker.Execute(func() error {
		opCtx, cancel := common.DetachedContext(ctx, s.cfg.StoreTimeout)
		defer cancel()

		pipe := s.redis.TxPipeline()
		countCmd = pipe.HIncrBy(opCtx, recordKey(identity), "count", int64(len(signals)))
		pipe.HSetNX(opCtx, recordKey(identity), "first_seen", nowMs)
		pipe.HSet(opCtx, recordKey(identity), "last_seen", nowMs)
		firstCmd = pipe.HGet(opCtx, recordKey(identity), "first_seen")
		pipe.SAdd(opCtx, signalsKey(identity), members...)
		membersCmd = pipe.SMembers(opCtx, signalsKey(identity))
		pipe.Expire(opCtx, recordKey(identity), ttl)
		pipe.Expire(opCtx, signalsKey(identity), ttl)
		_, execErr := pipe.Exec(opCtx)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record suspicion signals: %w", err)
	}

	firstMs, parseErr := strconv.ParseInt(firstCmd.Val(), 10, 64)
	if parseErr != nil {
		firstMs = now.UnixMilli()
	}

	record := &Record{
		Identity:  identity,
		Count:     countCmd.Val(),
		Signals:   sortedSignals(membersCmd.Val()),
		FirstSeen: time.UnixMilli(firstMs).UTC(),
		LastSeen:  now.UTC(),
	}
	applyThresholds(ctx, s.denier, s.logger, s.cfg, record)
	return record, nil
}
