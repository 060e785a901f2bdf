package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Action string

const (
	ActionDenyCreated   Action = "deny.created"
	ActionDenyRemoved   Action = "deny.removed"
	ActionDenyEscalated Action = "deny.escalated"

	ActionAllowCreated Action = "allow.created"
	ActionAllowRemoved Action = "allow.removed"
)

const (
	SourceAdmin  = "admin"
	SourceScorer = "scorer"
)

var (
	ErrInvalidAction   = errors.New("audit event action cannot be empty")
	ErrInvalidIdentity = errors.New("audit event identity cannot be empty")
	ErrInvalidSource   = errors.New("audit event source cannot be empty")
)

type Event struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Action    Action         `json:"action" gorm:"not null;index"`
	Identity  string         `json:"identity" gorm:"not null;index"`
	Reason    string         `json:"reason,omitempty"`
	Source    string         `json:"source" gorm:"not null"`
	Signals   pq.StringArray `json:"signals,omitempty" gorm:"type:text[]"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

func (Event) TableName() string {
	return "ward_audit_events"
}

func NewEvent(
	id uuid.UUID,
	action Action,
	identity string,
	reason string,
	source string,
	signals []string,
	createdAt time.Time,
) (*Event, error) {
	if action == "" {
		return nil, ErrInvalidAction
	}
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if source == "" {
		return nil, ErrInvalidSource
	}
	return &Event{
		ID:        id,
		Action:    action,
		Identity:  identity,
		Reason:    reason,
		Source:    source,
		Signals:   signals,
		CreatedAt: createdAt,
	}, nil
}
