package admission_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdgeWard/WardGate/pkg/admission"
	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/attackmode"
	"github.com/EdgeWard/WardGate/pkg/infra/ratelimit"
	"github.com/EdgeWard/WardGate/pkg/infra/suspicion"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var pipelineNow = time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)

type pipelineParams struct {
	burstMax         int64
	fingerprintMax   int64
	scorerThreshold  int64
	scorerMultiplier int64
	attackHigh       int64
}

func defaultParams() pipelineParams {
	return pipelineParams{
		burstMax:         100,
		fingerprintMax:   100,
		scorerThreshold:  3,
		scorerMultiplier: 5,
		attackHigh:       1000,
	}
}

type testPipeline struct {
	pipeline *admission.Pipeline
	manager  accesslist.Manager
	detector attackmode.Detector
}

func newTestPipeline(t *testing.T, current *time.Time, params pipelineParams) *testPipeline {
	t.Helper()
	logger := logrus.New()
	tp := func() time.Time { return *current }

	rules, err := suspicion.NewRuleSet(suspicion.RulesConfig{})
	require.NoError(t, err)

	manager := accesslist.NewMemoryManager(logger, accesslist.Config{
		LocalAllow: []string{"127.0.0.1", "::1"},
		DefaultBan: 30 * time.Minute,
	}, &accesslist.ManagerOpts{TimeProvider: tp})

	limiter := ratelimit.NewMemoryLimiter(&ratelimit.LimiterOpts{TimeProvider: tp})

	scorer := suspicion.NewMemoryScorer(rules, manager, logger, suspicion.Config{
		Threshold:          params.scorerThreshold,
		EscalateMultiplier: params.scorerMultiplier,
		RecordTTL:          time.Hour,
	}, &suspicion.ScorerOpts{TimeProvider: tp})

	detector := attackmode.NewMemoryDetector(logger, attackmode.Config{
		HighThreshold: params.attackHigh,
		ExitRatio:     0.5,
		BucketTTL:     2 * time.Minute,
		FlagTTL:       5 * time.Minute,
	}, &attackmode.DetectorOpts{TimeProvider: tp})

	sweeper := accesslist.NewSweeper(manager, logger, time.Minute)

	pipeline := admission.NewPipeline(admission.Config{
		Burst:       admission.WindowConfig{WindowMs: 1000, MaxEvents: params.burstMax},
		Fingerprint: admission.WindowConfig{WindowMs: 300000, MaxEvents: params.fingerprintMax},
	}, manager, limiter, scorer, detector, sweeper, logger)

	return &testPipeline{pipeline: pipeline, manager: manager, detector: detector}
}

func cleanRequest(ip string) admission.RequestInfo {
	return admission.RequestInfo{
		ClientIP:       ip,
		Method:         "GET",
		Path:           "/api/v1/orders",
		UserAgent:      chromeUA,
		AcceptLanguage: "en-US,en;q=0.9",
		AcceptEncoding: "gzip, br",
	}
}

func TestPipeline_AdmitsCleanRequest(t *testing.T) {
	current := pipelineNow
	tp := newTestPipeline(t, &current, defaultParams())

	decision := tp.pipeline.Admit(context.Background(), cleanRequest("203.0.113.7"))

	assert.True(t, decision.Allowed)
	assert.Equal(t, admission.OutcomeAdmitted, decision.Outcome)
	assert.Len(t, decision.Fingerprint, 64)
	assert.False(t, decision.AttackMode)
	require.NotNil(t, decision.RateLimit)
	assert.Equal(t, int64(99), decision.RateLimit.Remaining)
}

func TestPipeline_LocalAllowBypassesEverything(t *testing.T) {
	current := pipelineNow
	tp := newTestPipeline(t, &current, defaultParams())

	req := cleanRequest("127.0.0.1")
	req.Path = "/.env"
	req.UserAgent = ""

	decision := tp.pipeline.Admit(context.Background(), req)

	assert.True(t, decision.Allowed)
	assert.Equal(t, admission.OutcomeAdmitted, decision.Outcome)
}

func TestPipeline_StoreAllowBypassesChecks(t *testing.T) {
	current := pipelineNow
	tp := newTestPipeline(t, &current, defaultParams())
	ctx := context.Background()
	require.NoError(t, tp.manager.Allow(ctx, "203.0.113.7"))

	req := cleanRequest("203.0.113.7")
	req.Path = "/wp-admin/"

	decision := tp.pipeline.Admit(ctx, req)

	assert.True(t, decision.Allowed)
}

func TestPipeline_DeniedIdentityBlocked(t *testing.T) {
	current := pipelineNow
	tp := newTestPipeline(t, &current, defaultParams())
	ctx := context.Background()

	applied, err := tp.manager.Deny(ctx, "203.0.113.7", "manual block", time.Hour)
	require.NoError(t, err)
	require.True(t, applied)

	decision := tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7"))

	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.OutcomeBlocked, decision.Outcome)
	assert.Equal(t, 403, decision.StatusCode)
	assert.Equal(t, "access denied", decision.Reason)
	assert.Zero(t, decision.RetryAfter)
}

func TestPipeline_BurstRejection(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.burstMax = 2
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision := tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7"))
		require.True(t, decision.Allowed, "request %d", i)
	}

	decision := tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7"))

	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.OutcomeBurst, decision.Outcome)
	assert.Equal(t, 429, decision.StatusCode)
	assert.Equal(t, time.Second, decision.RetryAfter)
	require.NotNil(t, decision.RateLimit)
	assert.Equal(t, int64(2), decision.RateLimit.CurrentCount)
}

func TestPipeline_BurstCheckedBeforeSuspicion(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.burstMax = 1
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	require.True(t, tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7")).Allowed)

	req := cleanRequest("203.0.113.7")
	req.Path = "/.env"
	decision := tp.pipeline.Admit(ctx, req)

	assert.Equal(t, admission.OutcomeBurst, decision.Outcome)
}

func TestPipeline_SensitivePathRejectedAndEscalates(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.scorerThreshold = 1
	params.scorerMultiplier = 2
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	req := cleanRequest("203.0.113.7")
	req.Path = "/.git/config"

	for i := 0; i < 2; i++ {
		decision := tp.pipeline.Admit(ctx, req)
		assert.False(t, decision.Allowed, "request %d", i)
		assert.Equal(t, admission.OutcomeSuspicious, decision.Outcome, "request %d", i)
		assert.Equal(t, 400, decision.StatusCode, "request %d", i)
	}

	// Two recorded probes crossed the auto-deny threshold; even clean
	// requests are now blocked.
	decision := tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7"))
	assert.Equal(t, admission.OutcomeBlocked, decision.Outcome)

	entry, err := tp.manager.GetDenyEntry(ctx, "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, entry.Reason, "suspicious activity")
}

func TestPipeline_SoftSignalsAdmitButAccumulate(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.scorerThreshold = 1
	params.scorerMultiplier = 3
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	req := cleanRequest("203.0.113.7")
	req.UserAgent = ""

	// Soft signals never reject on their own.
	for i := 0; i < 2; i++ {
		decision := tp.pipeline.Admit(ctx, req)
		assert.True(t, decision.Allowed, "request %d", i)
	}

	// The third missing-agent request crosses the threshold (1*3) and the
	// identity is auto-denied from the next request on.
	decision := tp.pipeline.Admit(ctx, req)
	assert.True(t, decision.Allowed)

	decision = tp.pipeline.Admit(ctx, req)
	assert.Equal(t, admission.OutcomeBlocked, decision.Outcome)
}

func TestPipeline_FingerprintRateAcrossClients(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.fingerprintMax = 2
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	// Same client shape from different addresses shares one window.
	require.True(t, tp.pipeline.Admit(ctx, cleanRequest("198.51.100.1")).Allowed)
	require.True(t, tp.pipeline.Admit(ctx, cleanRequest("198.51.100.2")).Allowed)

	decision := tp.pipeline.Admit(ctx, cleanRequest("198.51.100.3"))

	assert.False(t, decision.Allowed)
	assert.Equal(t, admission.OutcomeFingerprintRate, decision.Outcome)
	assert.Equal(t, 429, decision.StatusCode)
	assert.Equal(t, 60*time.Second, decision.RetryAfter)
}

func TestPipeline_AttackModeCountsRejectedRequests(t *testing.T) {
	current := pipelineNow
	params := defaultParams()
	params.attackHigh = 2
	tp := newTestPipeline(t, &current, params)
	ctx := context.Background()

	_, err := tp.manager.Deny(ctx, "203.0.113.7", "manual block", time.Hour)
	require.NoError(t, err)

	var decision admission.Decision
	for i := 0; i < 3; i++ {
		decision = tp.pipeline.Admit(ctx, cleanRequest("203.0.113.7"))
		assert.Equal(t, admission.OutcomeBlocked, decision.Outcome)
	}

	// Three blocked requests still pushed the minute counter past the
	// threshold.
	assert.True(t, decision.AttackMode)
	assert.True(t, tp.detector.CurrentState(ctx).Active)
}

func TestPipeline_StartAndShutdown(t *testing.T) {
	current := pipelineNow
	tp := newTestPipeline(t, &current, defaultParams())

	tp.pipeline.Start()
	tp.pipeline.Shutdown()
}
