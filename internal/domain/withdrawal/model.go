package withdrawal

import "time"

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Withdrawal converts ledger balance into an outbound payout request.
// The ledger is debited only when the withdrawal is marked paid.
type Withdrawal struct {
	ID           string
	MemberID     string
	AmountPoints int64
	Method       string
	Destination  string
	Status       Status
	ExtRef       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Payable reports whether pay() may transition this withdrawal.
func (w Withdrawal) Payable() bool {
	return w.Status == StatusRequested || w.Status == StatusApproved
}
