package ledger

import (
	"fmt"
	"time"
)

// CurrencyPoints is the only currency the ledger accepts. External money is
// converted to integer points at the ingest boundary.
const CurrencyPoints = "points"

// Kind is the closed set of posting kinds.
type Kind string

const (
	KindStakeCaptured  Kind = "stake_captured_duels"
	KindDuelsPayout    Kind = "duels_payout"
	KindRake           Kind = "rake"
	KindDuelsHouseTake Kind = "duels_house_take"
	KindWithdrawal     Kind = "withdrawal"
	KindDonationCredit Kind = "donation_credit"
)

// Entry is an immutable signed delta against a member account. Entries are
// never mutated after insert; the idempotency key makes re-posting a no-op.
type Entry struct {
	ID             string
	MemberID       string
	Currency       string
	Delta          int64
	Kind           Kind
	Source         string
	SourceID       string
	Memo           string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Balance is a consistent snapshot of a member account.
type Balance struct {
	Posted    int64 `json:"posted"`
	Locked    int64 `json:"locked"`
	Available int64 `json:"available"`
}

// IdempotencyKey builds the deterministic fingerprint for a posting. The same
// logical action always maps to the same key, so retries collide as no-ops.
func IdempotencyKey(purpose, ref, memberID string, amount int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", purpose, ref, memberID, amount)
}
