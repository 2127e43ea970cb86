package ledger

import "context"

// Repository exposes ledger persistence operations.
//
// Insert must rely on a unique index over IdempotencyKey: on collision it
// returns the pre-existing entry and inserted=false instead of an error.
// Check-then-insert is not an acceptable implementation; only a unique
// constraint closes the race between concurrent posters.
type Repository interface {
	Insert(ctx context.Context, entry Entry) (Entry, bool, error)
	PostedSum(ctx context.Context, memberID string) (int64, error)
	ListRecent(ctx context.Context, memberID string, limit int) ([]Entry, error)
	ListBySource(ctx context.Context, source, sourceID string) ([]Entry, error)
}
