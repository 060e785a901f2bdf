package auditlogs

import (
	"context"
	"time"

	"github.com/EdgeWard/WardGate/pkg/common"
	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

// Recorder writes guard audit events. Recording must never fail the
// operation being audited, so failures are logged and swallowed.
//
//go:generate mockery --name=Recorder --dir=. --output=mocks/ --filename=recorder_mock.go --case=underscore --with-expecter
type Recorder interface {
	Record(ctx context.Context, action audit.Action, identity, reason, source string, signals []string)
}

type RecorderOpts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

func (o *RecorderOpts) timeProvider() func() time.Time {
	if o == nil || o.TimeProvider == nil {
		return time.Now
	}
	return o.TimeProvider
}

func (o *RecorderOpts) uuidProvider() func() uuid.UUID {
	if o == nil || o.UuidProvider == nil {
		return uuid.New
	}
	return o.UuidProvider
}

// NewRecorder returns a store-backed recorder, or a log-only recorder when
// no repository is configured.
func NewRecorder(repo audit.Repository, logger *logrus.Logger, opts *RecorderOpts) Recorder {
	if repo == nil {
		return &logRecorder{logger: logger}
	}
	return &storeRecorder{
		repo:   repo,
		logger: logger,
		opts:   opts,
	}
}

type storeRecorder struct {
	repo   audit.Repository
	logger *logrus.Logger
	opts   *RecorderOpts
}

func (r *storeRecorder) Record(
	ctx context.Context,
	action audit.Action,
	identity, reason, source string,
	signals []string,
) {
	event, err := audit.NewEvent(
		r.opts.uuidProvider()(),
		action,
		identity,
		reason,
		source,
		signals,
		r.opts.timeProvider()(),
	)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"action":   action,
			"identity": identity,
			"error":    err.Error(),
		}).Warn("dropping invalid audit event")
		return
	}

	// The write outlives the request that triggered it.
	storeCtx, cancel := common.DetachedContext(ctx, persistTimeout)
	defer cancel()

	if err := r.repo.Save(storeCtx, event); err != nil {
		r.logger.WithFields(logrus.Fields{
			"action":   action,
			"identity": identity,
			"error":    err.Error(),
		}).Error("failed to persist audit event")
	}
}

type logRecorder struct {
	logger *logrus.Logger
}

func (r *logRecorder) Record(
	_ context.Context,
	action audit.Action,
	identity, reason, source string,
	signals []string,
) {
	r.logger.WithFields(logrus.Fields{
		"action":   action,
		"identity": identity,
		"reason":   reason,
		"source":   source,
		"signals":  signals,
	}).Info("audit event")
}
