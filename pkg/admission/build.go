package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/config"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/attackmode"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	"github.com/EdgeWard/WardGate/pkg/infra/breaker"
	"github.com/EdgeWard/WardGate/pkg/infra/ratelimit"
	"github.com/EdgeWard/WardGate/pkg/infra/suspicion"
)

const (
	breakerOpenTimeout = 10 * time.Second
	breakerMaxFailures = 3
)

// Build assembles a pipeline for the configured provider. redisClient may be
// nil when the provider is "memory"; recorder may be nil to skip escalation
// auditing.
func Build(
	cfg config.GuardConfig,
	redisClient *redis.Client,
	recorder auditlogs.Recorder,
	logger *logrus.Logger,
) (*Pipeline, error) {
	rules, err := suspicion.NewRuleSet(suspicion.RulesConfig{
		SensitivePaths:    cfg.Suspicion.SensitivePaths,
		BotAgents:         cfg.Suspicion.BotAgents,
		MaxForwardedDepth: cfg.Suspicion.MaxForwardedDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detection rules: %w", err)
	}

	listCfg := accesslist.Config{
		LocalAllow:   cfg.AlwaysAllow,
		DefaultBan:   cfg.BanDuration,
		StoreTimeout: cfg.StoreTimeout,
	}
	scorerCfg := suspicion.Config{
		Threshold:          cfg.Suspicion.Threshold,
		EscalateMultiplier: cfg.Suspicion.EscalateMultiplier,
		RecordTTL:          cfg.Suspicion.RecordTTL,
		StoreTimeout:       cfg.StoreTimeout,
	}
	detectorCfg := attackmode.Config{
		HighThreshold: cfg.AttackMode.HighThreshold,
		ExitRatio:     cfg.AttackMode.ExitRatio,
		BucketTTL:     cfg.AttackMode.BucketTTL,
		FlagTTL:       cfg.AttackMode.FlagTTL,
		StoreTimeout:  cfg.StoreTimeout,
	}

	var (
		manager  accesslist.Manager
		limiter  ratelimit.Limiter
		scorer   suspicion.Scorer
		detector attackmode.Detector
	)
	switch cfg.Provider {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("guard provider redis requires a cache client")
		}
		manager = accesslist.NewRedisManager(redisClient, newBreaker("accesslist"), logger, listCfg, nil)
		denier := newAuditedDenier(manager, recorder)
		limiter = ratelimit.NewRedisLimiter(redisClient, newBreaker("ratelimit"), logger, cfg.StoreTimeout, nil)
		scorer = suspicion.NewRedisScorer(rules, redisClient, newBreaker("suspicion"), denier, logger, scorerCfg, nil)
		detector = attackmode.NewRedisDetector(redisClient, newBreaker("attackmode"), logger, detectorCfg, nil)
	case "memory":
		manager = accesslist.NewMemoryManager(logger, listCfg, nil)
		denier := newAuditedDenier(manager, recorder)
		limiter = ratelimit.NewMemoryLimiter(nil)
		scorer = suspicion.NewMemoryScorer(rules, denier, logger, scorerCfg, nil)
		detector = attackmode.NewMemoryDetector(logger, detectorCfg, nil)
	default:
		return nil, fmt.Errorf("unknown guard provider: %s", cfg.Provider)
	}

	// The memory provider prunes lazily on access, so its limiter and scorer
	// join the sweep to evict keys that are never touched again. The redis
	// provider leaves those to per-key TTLs.
	targets := sweepTargets{manager}
	if t, ok := limiter.(accesslist.Sweepable); ok {
		targets = append(targets, t)
	}
	if t, ok := scorer.(accesslist.Sweepable); ok {
		targets = append(targets, t)
	}
	sweeper := accesslist.NewSweeper(targets, logger, cfg.SweepInterval)

	pipelineCfg := Config{
		Burst: WindowConfig{
			WindowMs:  cfg.Burst.WindowMs,
			MaxEvents: cfg.Burst.MaxEvents,
		},
		Fingerprint: WindowConfig{
			WindowMs:  cfg.Fingerprint.WindowMs,
			MaxEvents: cfg.Fingerprint.MaxEvents,
		},
	}
	return NewPipeline(pipelineCfg, manager, limiter, scorer, detector, sweeper, logger), nil
}

// AccessList exposes the manager for the admin surface; the pipeline and the
// admin API must share one view of the allow and deny sets.
func (p *Pipeline) AccessList() accesslist.Manager {
	return p.accessList
}

// Detector exposes the attack-mode detector for the status endpoint.
func (p *Pipeline) Detector() attackmode.Detector {
	return p.detector
}

func newBreaker(name string) breaker.CircuitBreaker {
	return breaker.NewCircuitBreaker(name, breakerOpenTimeout, breakerMaxFailures)
}

// sweepTargets fans one sweep pass out over every component that expires
// entries lazily. A failing target does not stop the others.
type sweepTargets []accesslist.Sweepable

func (t sweepTargets) Sweep(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, target := range t {
		removed, err := target.Sweep(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += removed
	}
	return total, errors.Join(errs...)
}
