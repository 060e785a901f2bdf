package repository

import (
	"context"
	"fmt"

	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	"gorm.io/gorm"
)

const defaultAuditListLimit = 100

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) audit.Repository {
	return &AuditEventRepository{
		db: db,
	}
}

func (r *AuditEventRepository) Save(ctx context.Context, event *audit.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

func (r *AuditEventRepository) List(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	var events []audit.Event
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}
