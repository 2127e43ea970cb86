package donation

import "context"

type Repository interface {
	// Upsert inserts by payment id; on conflict it refreshes member_hint
	// (when the new value is non-empty) and leaves everything else intact.
	Upsert(ctx context.Context, d Donation) (Donation, error)
	Get(ctx context.Context, paymentID string) (Donation, bool, error)
	ListUncredited(ctx context.Context, limit int) ([]Donation, error)
	MarkCredited(ctx context.Context, paymentID, memberID string) error
}
