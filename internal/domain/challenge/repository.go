package challenge

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned by Insert when another transaction created the
// same challenge first (by id or by client id). Callers treat it as a lost
// race, not a storage failure.
var ErrDuplicate = errors.New("challenge already exists")

// Repository persists challenges, their two sides, and the event log.
//
// The ForUpdate variants take row-level locks; callers acquire them in a
// fixed order (challenge row, then sides ascending) to avoid deadlocks.
type Repository interface {
	Insert(ctx context.Context, c Challenge) error
	Get(ctx context.Context, id string) (Challenge, bool, error)
	GetForUpdate(ctx context.Context, id string) (Challenge, bool, error)
	GetByClientID(ctx context.Context, clientID string) (Challenge, bool, error)
	SetStake(ctx context.Context, id string, stake int64, at time.Time) error
	SetStatus(ctx context.Context, id string, status Status, at time.Time) error
	List(ctx context.Context, filter Filter) ([]Challenge, error)

	GetSide(ctx context.Context, challengeID string, side int) (Side, bool, error)
	GetSideForUpdate(ctx context.Context, challengeID string, side int) (Side, bool, error)
	ListSides(ctx context.Context, challengeID string) ([]Side, error)
	UpsertSide(ctx context.Context, s Side) error
	SetSidePoints(ctx context.Context, challengeID string, side int, points float64) error

	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, challengeID string) ([]Event, error)
}
