package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fortifiedfantasy/duels/internal/domain/withdrawal"
)

type withdrawalTableModel struct {
	ID           string    `db:"id"`
	MemberID     string    `db:"member_id"`
	AmountPoints int64     `db:"amount_points"`
	Method       string    `db:"method"`
	Destination  string    `db:"destination"`
	Status       string    `db:"status"`
	ExtRef       string    `db:"ext_ref"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func withdrawalFromRow(row withdrawalTableModel) withdrawal.Withdrawal {
	return withdrawal.Withdrawal{
		ID:           row.ID,
		MemberID:     row.MemberID,
		AmountPoints: row.AmountPoints,
		Method:       row.Method,
		Destination:  row.Destination,
		Status:       withdrawal.Status(row.Status),
		ExtRef:       row.ExtRef,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

const insertWithdrawalSQL = `
INSERT INTO withdrawals (id, member_id, amount_points, method, destination, status, ext_ref, created_at, updated_at)
VALUES (:id, :member_id, :amount_points, :method, :destination, :status, :ext_ref, :created_at, :updated_at)`

func (r *WithdrawalRepository) Insert(ctx context.Context, w withdrawal.Withdrawal) error {
	q := resolveQueryer(ctx, r.db)

	row := withdrawalTableModel{
		ID:           w.ID,
		MemberID:     w.MemberID,
		AmountPoints: w.AmountPoints,
		Method:       w.Method,
		Destination:  w.Destination,
		Status:       string(w.Status),
		ExtRef:       w.ExtRef,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, q, insertWithdrawalSQL, row); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

const getWithdrawalForUpdateSQL = `
SELECT id, member_id, amount_points, method, destination, status, ext_ref, created_at, updated_at
FROM withdrawals
WHERE id = $1
FOR UPDATE`

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, id string) (withdrawal.Withdrawal, bool, error) {
	q := resolveQueryer(ctx, r.db)

	var row withdrawalTableModel
	if err := q.GetContext(ctx, &row, getWithdrawalForUpdateSQL, id); err != nil {
		if isNotFound(err) {
			return withdrawal.Withdrawal{}, false, nil
		}
		return withdrawal.Withdrawal{}, false, fmt.Errorf("get withdrawal for update: %w", err)
	}
	return withdrawalFromRow(row), true, nil
}

const setWithdrawalStatusSQL = `
UPDATE withdrawals
SET status = $1,
    ext_ref = CASE WHEN $2 <> '' THEN $2 ELSE ext_ref END,
    updated_at = $3
WHERE id = $4`

func (r *WithdrawalRepository) SetStatus(ctx context.Context, id string, status withdrawal.Status, extRef string, at time.Time) error {
	q := resolveQueryer(ctx, r.db)

	if _, err := q.ExecContext(ctx, setWithdrawalStatusSQL, string(status), extRef, at, id); err != nil {
		return fmt.Errorf("set withdrawal status: %w", err)
	}
	return nil
}

const listWithdrawalsByMemberSQL = `
SELECT id, member_id, amount_points, method, destination, status, ext_ref, created_at, updated_at
FROM withdrawals
WHERE member_id = $1
ORDER BY created_at DESC
LIMIT $2`

func (r *WithdrawalRepository) ListByMember(ctx context.Context, memberID string, limit int) ([]withdrawal.Withdrawal, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []withdrawalTableModel
	if err := q.SelectContext(ctx, &rows, listWithdrawalsByMemberSQL, memberID, limit); err != nil {
		return nil, fmt.Errorf("list withdrawals by member: %w", err)
	}

	out := make([]withdrawal.Withdrawal, 0, len(rows))
	for _, row := range rows {
		out = append(out, withdrawalFromRow(row))
	}
	return out, nil
}
