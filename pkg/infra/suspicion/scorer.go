package suspicion

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Record is the accumulated suspicion state for one identity.
type Record struct {
	Identity  string    `json:"identity"`
	Count     int64     `json:"count"`
	Signals   []string  `json:"signals"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Escalated bool      `json:"escalated"`
}

// Denier is the single access-list operation escalation needs.
type Denier interface {
	Deny(ctx context.Context, identity, reason string, duration time.Duration) (bool, error)
}

// Scorer evaluates detection rules and tracks per-identity suspicion counts.
//
//go:generate mockery --name=Scorer --case=underscore
type Scorer interface {
	Evaluate(req Request) []Signal
	// RecordSignals folds the signals into the identity's rolling record and
	// escalates to a deny once the count crosses the auto-deny threshold.
	// Re-crossing the threshold is a harmless no-op, never an error.
	RecordSignals(ctx context.Context, identity string, signals []Signal) (*Record, error)
}

type Config struct {
	Threshold          int64
	EscalateMultiplier int64
	RecordTTL          time.Duration
	StoreTimeout       time.Duration
}

func (c Config) baseThreshold() int64 {
	if c.Threshold <= 0 {
		return 3
	}
	return c.Threshold
}

func (c Config) escalateThreshold() int64 {
	multiplier := c.EscalateMultiplier
	if multiplier <= 0 {
		multiplier = 5
	}
	return c.baseThreshold() * multiplier
}

func (c Config) recordTTL() time.Duration {
	if c.RecordTTL <= 0 {
		return time.Hour
	}
	return c.RecordTTL
}

type ScorerOpts struct {
	TimeProvider func() time.Time
}

func (o *ScorerOpts) timeProvider() func() time.Time {
	if o == nil || o.TimeProvider == nil {
		return time.Now
	}
	return o.TimeProvider
}

// EscalationReasonPrefix starts the deny reason attached to auto-denied
// clients; the comma-joined signal names follow it.
const EscalationReasonPrefix = "suspicious activity: "

func escalationReason(signals []string) string {
	return EscalationReasonPrefix + strings.Join(signals, ",")
}

// applyThresholds escalates or warns based on the updated record. A zero
// duration hands the ban length to the access list's configured default.
func applyThresholds(ctx context.Context, denier Denier, logger *logrus.Logger, cfg Config, record *Record) {
	switch {
	case record.Count >= cfg.escalateThreshold():
		applied, err := denier.Deny(ctx, record.Identity, escalationReason(record.Signals), 0)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"identity": record.Identity,
				"count":    record.Count,
				"error":    err.Error(),
			}).Warn("failed to escalate suspicious client")
			return
		}
		if applied {
			record.Escalated = true
			logger.WithFields(logrus.Fields{
				"identity": record.Identity,
				"count":    record.Count,
				"signals":  record.Signals,
			}).Warn("suspicious client auto-denied")
		}
	case record.Count >= cfg.baseThreshold():
		logger.WithFields(logrus.Fields{
			"identity": record.Identity,
			"count":    record.Count,
			"signals":  record.Signals,
		}).Warn("suspicious client activity")
	}
}

func sortedSignals(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return sorted
}
