package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fortifiedfantasy/duels/internal/domain/hold"
)

type holdTableModel struct {
	ID         string     `db:"id"`
	MemberID   string     `db:"member_id"`
	Amount     int64      `db:"amount"`
	Status     string     `db:"status"`
	RefType    string     `db:"ref_type"`
	RefID      string     `db:"ref_id"`
	CreatedAt  time.Time  `db:"created_at"`
	CapturedAt *time.Time `db:"captured_at"`
	ReleasedAt *time.Time `db:"released_at"`
}

func holdFromRow(row holdTableModel) hold.Hold {
	return hold.Hold{
		ID:         row.ID,
		MemberID:   row.MemberID,
		Amount:     row.Amount,
		Status:     hold.Status(row.Status),
		RefType:    row.RefType,
		RefID:      row.RefID,
		CreatedAt:  row.CreatedAt,
		CapturedAt: row.CapturedAt,
		ReleasedAt: row.ReleasedAt,
	}
}

type HoldRepository struct {
	db *sqlx.DB
}

func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

const insertHoldSQL = `
INSERT INTO holds (id, member_id, amount, status, ref_type, ref_id, created_at)
VALUES (:id, :member_id, :amount, :status, :ref_type, :ref_id, :created_at)`

func (r *HoldRepository) Insert(ctx context.Context, h hold.Hold) error {
	q := resolveQueryer(ctx, r.db)

	row := holdTableModel{
		ID:        h.ID,
		MemberID:  h.MemberID,
		Amount:    h.Amount,
		Status:    string(h.Status),
		RefType:   h.RefType,
		RefID:     h.RefID,
		CreatedAt: h.CreatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, q, insertHoldSQL, row); err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

const getHoldForUpdateSQL = `
SELECT id, member_id, amount, status, ref_type, ref_id, created_at, captured_at, released_at
FROM holds
WHERE id = $1
FOR UPDATE`

func (r *HoldRepository) GetForUpdate(ctx context.Context, id string) (hold.Hold, bool, error) {
	q := resolveQueryer(ctx, r.db)

	var row holdTableModel
	if err := q.GetContext(ctx, &row, getHoldForUpdateSQL, id); err != nil {
		if isNotFound(err) {
			return hold.Hold{}, false, nil
		}
		return hold.Hold{}, false, fmt.Errorf("get hold for update: %w", err)
	}
	return holdFromRow(row), true, nil
}

const transitionHoldSQL = `
UPDATE holds
SET status = $1,
    captured_at = CASE WHEN $1 = 'captured' THEN $2 ELSE captured_at END,
    released_at = CASE WHEN $1 = 'released' THEN $2 ELSE released_at END
WHERE id = $3 AND status = $4`

// Transition flips a hold's status, guarded by its current one. The guard
// makes held→captured and held→released the only reachable edges.
func (r *HoldRepository) Transition(ctx context.Context, id string, from, to hold.Status, at time.Time) (bool, error) {
	q := resolveQueryer(ctx, r.db)

	res, err := q.ExecContext(ctx, transitionHoldSQL, string(to), at, id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition hold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition hold rows affected: %w", err)
	}
	return affected == 1, nil
}

const activeHoldSumSQL = `
SELECT COALESCE(SUM(amount), 0) FROM holds WHERE member_id = $1 AND status = 'held'`

func (r *HoldRepository) ActiveSum(ctx context.Context, memberID string) (int64, error) {
	q := resolveQueryer(ctx, r.db)

	var sum int64
	if err := q.GetContext(ctx, &sum, activeHoldSumSQL, memberID); err != nil {
		return 0, fmt.Errorf("sum active holds: %w", err)
	}
	return sum, nil
}

const listHoldsByRefSQL = `
SELECT id, member_id, amount, status, ref_type, ref_id, created_at, captured_at, released_at
FROM holds
WHERE ref_type = $1 AND ref_id = $2
ORDER BY id`

func (r *HoldRepository) ListByRef(ctx context.Context, refType, refID string) ([]hold.Hold, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []holdTableModel
	if err := q.SelectContext(ctx, &rows, listHoldsByRefSQL, refType, refID); err != nil {
		return nil, fmt.Errorf("list holds by ref: %w", err)
	}

	out := make([]hold.Hold, 0, len(rows))
	for _, row := range rows {
		out = append(out, holdFromRow(row))
	}
	return out, nil
}
