package audit

import (
	"context"
)

//go:generate mockery --name=Repository --dir=. --output=mocks/ --filename=audit_repository_mock.go --case=underscore --with-expecter
type Repository interface {
	Save(ctx context.Context, event *Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}
