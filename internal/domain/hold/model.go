package hold

import "time"

type Status string

const (
	StatusHeld     Status = "held"
	StatusCaptured Status = "captured"
	StatusReleased Status = "released"
)

// Hold reserves part of a member's point balance against a reference
// (typically a challenge). Amount is fixed at creation; the only legal
// transitions are held→captured and held→released.
type Hold struct {
	ID         string
	MemberID   string
	Amount     int64
	Status     Status
	RefType    string
	RefID      string
	CreatedAt  time.Time
	CapturedAt *time.Time
	ReleasedAt *time.Time
}

// Active reports whether the hold still locks funds.
func (h Hold) Active() bool {
	return h.Status == StatusHeld
}
