package hold

import (
	"context"
	"time"
)

// Repository exposes hold persistence operations. GetForUpdate must take a
// row-level lock when the backing store supports one; capture and release
// flows serialize on it.
type Repository interface {
	Insert(ctx context.Context, h Hold) error
	GetForUpdate(ctx context.Context, id string) (Hold, bool, error)
	// Transition moves a hold from one status to another and returns false
	// when the row was not in the expected source status.
	Transition(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
	ActiveSum(ctx context.Context, memberID string) (int64, error)
	ListByRef(ctx context.Context, refType, refID string) ([]Hold, error)
}
