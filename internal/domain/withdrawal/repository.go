package withdrawal

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, w Withdrawal) error
	GetForUpdate(ctx context.Context, id string) (Withdrawal, bool, error)
	SetStatus(ctx context.Context, id string, status Status, extRef string, at time.Time) error
	ListByMember(ctx context.Context, memberID string, limit int) ([]Withdrawal, error)
}
