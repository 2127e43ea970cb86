package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fortifiedfantasy/duels/internal/domain/donation"
)

type donationTableModel struct {
	PaymentID        string    `db:"payment_id"`
	AmountCents      int64     `db:"amount_cents"`
	Currency         string    `db:"currency"`
	DonorEmail       string    `db:"donor_email"`
	MemberHint       string    `db:"member_hint"`
	OccurredAt       time.Time `db:"occurred_at"`
	RawPayload       []byte    `db:"raw_payload"`
	CreditedMemberID string    `db:"credited_member_id"`
	CreatedAt        time.Time `db:"created_at"`
}

func donationFromRow(row donationTableModel) donation.Donation {
	return donation.Donation{
		PaymentID:        row.PaymentID,
		AmountCents:      row.AmountCents,
		Currency:         row.Currency,
		DonorEmail:       row.DonorEmail,
		MemberHint:       row.MemberHint,
		OccurredAt:       row.OccurredAt,
		RawPayload:       row.RawPayload,
		CreditedMemberID: row.CreditedMemberID,
		CreatedAt:        row.CreatedAt,
	}
}

type DonationRepository struct {
	db *sqlx.DB
}

func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

const upsertDonationSQL = `
INSERT INTO donations (payment_id, amount_cents, currency, donor_email, member_hint, occurred_at, raw_payload, created_at)
VALUES (:payment_id, :amount_cents, :currency, :donor_email, :member_hint, :occurred_at, :raw_payload, :created_at)
ON CONFLICT (payment_id)
DO UPDATE SET
    member_hint = CASE WHEN EXCLUDED.member_hint <> '' THEN EXCLUDED.member_hint ELSE donations.member_hint END
RETURNING payment_id, amount_cents, currency, donor_email, member_hint, occurred_at, raw_payload, credited_member_id, created_at`

// Upsert inserts by the processor's payment id. Redeliveries keep the
// original payment but may refresh an empty member hint.
func (r *DonationRepository) Upsert(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	q := resolveQueryer(ctx, r.db)

	row := donationTableModel{
		PaymentID:   d.PaymentID,
		AmountCents: d.AmountCents,
		Currency:    d.Currency,
		DonorEmail:  d.DonorEmail,
		MemberHint:  d.MemberHint,
		OccurredAt:  d.OccurredAt,
		RawPayload:  d.RawPayload,
		CreatedAt:   d.CreatedAt,
	}

	query, args, err := sqlx.Named(upsertDonationSQL, row)
	if err != nil {
		return donation.Donation{}, fmt.Errorf("bind upsert donation query: %w", err)
	}
	query = q.Rebind(query)

	var stored donationTableModel
	if err := q.GetContext(ctx, &stored, query, args...); err != nil {
		return donation.Donation{}, fmt.Errorf("upsert donation: %w", err)
	}
	return donationFromRow(stored), nil
}

const getDonationSQL = `
SELECT payment_id, amount_cents, currency, donor_email, member_hint, occurred_at, raw_payload, credited_member_id, created_at
FROM donations
WHERE payment_id = $1`

func (r *DonationRepository) Get(ctx context.Context, paymentID string) (donation.Donation, bool, error) {
	q := resolveQueryer(ctx, r.db)

	var row donationTableModel
	if err := q.GetContext(ctx, &row, getDonationSQL, paymentID); err != nil {
		if isNotFound(err) {
			return donation.Donation{}, false, nil
		}
		return donation.Donation{}, false, fmt.Errorf("get donation: %w", err)
	}
	return donationFromRow(row), true, nil
}

const listUncreditedDonationsSQL = `
SELECT payment_id, amount_cents, currency, donor_email, member_hint, occurred_at, raw_payload, credited_member_id, created_at
FROM donations
WHERE credited_member_id = ''
ORDER BY occurred_at
LIMIT $1`

func (r *DonationRepository) ListUncredited(ctx context.Context, limit int) ([]donation.Donation, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []donationTableModel
	if err := q.SelectContext(ctx, &rows, listUncreditedDonationsSQL, limit); err != nil {
		return nil, fmt.Errorf("list uncredited donations: %w", err)
	}

	out := make([]donation.Donation, 0, len(rows))
	for _, row := range rows {
		out = append(out, donationFromRow(row))
	}
	return out, nil
}

const markDonationCreditedSQL = `
UPDATE donations SET credited_member_id = $1 WHERE payment_id = $2 AND credited_member_id = ''`

func (r *DonationRepository) MarkCredited(ctx context.Context, paymentID, memberID string) error {
	q := resolveQueryer(ctx, r.db)

	if _, err := q.ExecContext(ctx, markDonationCreditedSQL, memberID, paymentID); err != nil {
		return fmt.Errorf("mark donation credited: %w", err)
	}
	return nil
}
