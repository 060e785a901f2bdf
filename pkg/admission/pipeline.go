package admission

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EdgeWard/WardGate/pkg/infra/accesslist"
	"github.com/EdgeWard/WardGate/pkg/infra/attackmode"
	"github.com/EdgeWard/WardGate/pkg/infra/fingerprint"
	"github.com/EdgeWard/WardGate/pkg/infra/ratelimit"
	"github.com/EdgeWard/WardGate/pkg/infra/suspicion"
)

const (
	OutcomeAdmitted        = "admitted"
	OutcomeBlocked         = "blocked"
	OutcomeBurst           = "burst"
	OutcomeSuspicious      = "suspicious"
	OutcomeFingerprintRate = "fingerprint_rate"
)

const (
	burstKeyPrefix       = "ward:burst:"
	fingerprintKeyPrefix = "ward:fpr:"

	burstRetryAfter       = time.Second
	fingerprintRetryAfter = 60 * time.Second
)

// RequestInfo is the slice of an inbound request the pipeline inspects.
type RequestInfo struct {
	ClientIP       string
	Method         string
	Path           string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	ForwardedFor   string
}

// Decision is the pipeline's verdict for one request. Rejections carry the
// status code and retry hint to answer with; every decision carries the
// fingerprint and attack-mode annotation.
type Decision struct {
	Allowed     bool
	Outcome     string
	StatusCode  int
	RetryAfter  time.Duration
	Reason      string
	Fingerprint string
	AttackMode  bool
	RateLimit   *ratelimit.Result
}

type WindowConfig struct {
	WindowMs  int64
	MaxEvents int64
}

type Config struct {
	Burst       WindowConfig
	Fingerprint WindowConfig
}

// Pipeline runs the admission checks in a fixed order: attack-mode counting,
// allow list, deny list, burst window, suspicion rules, fingerprint window.
// It also owns the expiry sweeper's lifecycle.
type Pipeline struct {
	cfg        Config
	accessList accesslist.Manager
	limiter    ratelimit.Limiter
	scorer     suspicion.Scorer
	detector   attackmode.Detector
	sweeper    *accesslist.Sweeper
	logger     *logrus.Logger
}

func NewPipeline(
	cfg Config,
	accessList accesslist.Manager,
	limiter ratelimit.Limiter,
	scorer suspicion.Scorer,
	detector attackmode.Detector,
	sweeper *accesslist.Sweeper,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		accessList: accessList,
		limiter:    limiter,
		scorer:     scorer,
		detector:   detector,
		sweeper:    sweeper,
		logger:     logger,
	}
}

// Start launches the expiry sweeper.
func (p *Pipeline) Start() {
	p.sweeper.Start()
}

// Shutdown stops the sweeper and waits for an in-flight pass.
func (p *Pipeline) Shutdown() {
	p.sweeper.Stop()
}

// Admit decides one request. It never returns an error: every infrastructure
// failure inside a check fails open so the protected service stays reachable.
func (p *Pipeline) Admit(ctx context.Context, req RequestInfo) Decision {
	// Fleet-wide volume is counted before any per-client verdict so rejected
	// requests still feed attack detection.
	attack := p.detector.RecordRequest(ctx)

	fp := fingerprint.New(req.UserAgent, req.AcceptLanguage, req.AcceptEncoding, req.Method, req.Path).ID()
	identity := req.ClientIP

	if p.accessList.IsLocallyAllowed(identity) {
		return admitted(fp, attack, nil)
	}
	if p.accessList.IsAllowed(ctx, identity) {
		return admitted(fp, attack, nil)
	}

	if entry, err := p.accessList.GetDenyEntry(ctx, identity); err != nil {
		p.logger.WithFields(logrus.Fields{
			"client_ip": identity,
			"error":     err.Error(),
		}).Warn("deny check failed, failing open")
	} else if entry != nil {
		p.logger.WithFields(logrus.Fields{
			"client_ip": identity,
			"reason":    entry.Reason,
		}).Debug("request blocked by deny list")
		return Decision{
			Outcome:     OutcomeBlocked,
			StatusCode:  http.StatusForbidden,
			Reason:      "access denied",
			Fingerprint: fp,
			AttackMode:  attack.Active,
		}
	}

	burst := p.check(ctx, burstKeyPrefix+identity, p.cfg.Burst)
	if !burst.Allowed {
		return Decision{
			Outcome:     OutcomeBurst,
			StatusCode:  http.StatusTooManyRequests,
			RetryAfter:  burstRetryAfter,
			Reason:      "too many requests",
			Fingerprint: fp,
			AttackMode:  attack.Active,
			RateLimit:   burst,
		}
	}

	signals := p.scorer.Evaluate(suspicion.Request{
		Path:         req.Path,
		UserAgent:    req.UserAgent,
		ForwardedFor: req.ForwardedFor,
	})
	if len(signals) > 0 {
		// Hard signals are recorded too, so repeat probing escalates into a
		// deny entry even though each request is already rejected.
		if _, err := p.scorer.RecordSignals(ctx, identity, signals); err != nil {
			p.logger.WithFields(logrus.Fields{
				"client_ip": identity,
				"error":     err.Error(),
			}).Warn("failed to record suspicion signals")
		}
		if suspicion.HasHard(signals) {
			return Decision{
				Outcome:     OutcomeSuspicious,
				StatusCode:  http.StatusBadRequest,
				Reason:      "request rejected",
				Fingerprint: fp,
				AttackMode:  attack.Active,
			}
		}
	}

	rate := p.check(ctx, fingerprintKeyPrefix+fp, p.cfg.Fingerprint)
	if !rate.Allowed {
		return Decision{
			Outcome:     OutcomeFingerprintRate,
			StatusCode:  http.StatusTooManyRequests,
			RetryAfter:  fingerprintRetryAfter,
			Reason:      "rate limit exceeded",
			Fingerprint: fp,
			AttackMode:  attack.Active,
			RateLimit:   rate,
		}
	}

	return admitted(fp, attack, rate)
}

func admitted(fp string, attack attackmode.State, rate *ratelimit.Result) Decision {
	return Decision{
		Allowed:     true,
		Outcome:     OutcomeAdmitted,
		Fingerprint: fp,
		AttackMode:  attack.Active,
		RateLimit:   rate,
	}
}

// check runs one sliding window. A validation error can only come from
// misconfiguration, so it is logged and treated as open rather than taking
// down admission.
func (p *Pipeline) check(ctx context.Context, key string, window WindowConfig) *ratelimit.Result {
	res, err := p.limiter.Check(ctx, key, window.WindowMs, window.MaxEvents)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("rate limit check misconfigured, failing open")
		return &ratelimit.Result{Allowed: true, Limit: window.MaxEvents, Remaining: window.MaxEvents, ResetInMs: window.WindowMs}
	}
	return res
}
