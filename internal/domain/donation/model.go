package donation

import "time"

// Donation is an externally-originated payment keyed by the processor's
// payment id. Unmappable donations are stored and credited later once a
// donor→member mapping appears.
type Donation struct {
	PaymentID        string
	AmountCents      int64
	Currency         string
	DonorEmail       string
	MemberHint       string
	OccurredAt       time.Time
	RawPayload       []byte
	CreditedMemberID string
	CreatedAt        time.Time
}

// Credited reports whether points were already granted for this payment.
func (d Donation) Credited() bool {
	return d.CreditedMemberID != ""
}

// CreditPoints converts cents to integer points at the given rate,
// truncating toward zero. Balances never see fractional points.
func CreditPoints(amountCents, pointsPerDollar int64) int64 {
	if amountCents <= 0 || pointsPerDollar <= 0 {
		return 0
	}
	return amountCents * pointsPerDollar / 100
}
