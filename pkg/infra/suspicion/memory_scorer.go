package suspicion

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type memRecord struct {
	count     int64
	signals   map[string]struct{}
	firstSeen time.Time
	lastSeen  time.Time
	expiresAt time.Time
}

// memoryScorer is the single-instance fallback. Records decay lazily: an
// expired record is replaced on the next signal instead of being updated,
// and Sweep evicts records that never received another signal.
type memoryScorer struct {
	rules        *RuleSet
	denier       Denier
	logger       *logrus.Logger
	cfg          Config
	timeProvider func() time.Time

	mu      sync.Mutex
	records map[string]*memRecord
}

func NewMemoryScorer(rules *RuleSet, denier Denier, logger *logrus.Logger, cfg Config, opts *ScorerOpts) Scorer {
	return &memoryScorer{
		rules:        rules,
		denier:       denier,
		logger:       logger,
		cfg:          cfg,
		timeProvider: opts.timeProvider(),
		records:      make(map[string]*memRecord),
	}
}

func (s *memoryScorer) Evaluate(req Request) []Signal {
	return s.rules.Evaluate(req)
}

func (s *memoryScorer) RecordSignals(ctx context.Context, identity string, signals []Signal) (*Record, error) {
	if identity == "" || len(signals) == 0 {
		return nil, nil
	}

	now := s.timeProvider()
	ttl := s.cfg.recordTTL()

	s.mu.Lock()
	rec, ok := s.records[identity]
	if !ok || now.After(rec.expiresAt) {
		rec = &memRecord{
			signals:   make(map[string]struct{}),
			firstSeen: now,
		}
		s.records[identity] = rec
	}
	rec.count += int64(len(signals))
	for _, sig := range signals {
		rec.signals[sig.Name] = struct{}{}
	}
	rec.lastSeen = now
	rec.expiresAt = now.Add(ttl)

	names := make([]string, 0, len(rec.signals))
	for name := range rec.signals {
		names = append(names, name)
	}
	record := &Record{
		Identity:  identity,
		Count:     rec.count,
		Signals:   sortedSignals(names),
		FirstSeen: rec.firstSeen,
		LastSeen:  rec.lastSeen,
	}
	s.mu.Unlock()

	applyThresholds(ctx, s.denier, s.logger, s.cfg, record)
	return record, nil
}

// Sweep removes expired records so identities seen once do not accumulate.
func (s *memoryScorer) Sweep(_ context.Context) (int64, error) {
	now := s.timeProvider()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for identity, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, identity)
			removed++
		}
	}
	return removed, nil
}
