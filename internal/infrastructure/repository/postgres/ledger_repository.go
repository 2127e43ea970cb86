package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
)

type ledgerEntryTableModel struct {
	ID             string    `db:"id"`
	MemberID       string    `db:"member_id"`
	Currency       string    `db:"currency"`
	Delta          int64     `db:"delta"`
	Kind           string    `db:"kind"`
	Source         string    `db:"source"`
	SourceID       string    `db:"source_id"`
	Memo           string    `db:"memo"`
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

func ledgerEntryFromRow(row ledgerEntryTableModel) ledger.Entry {
	return ledger.Entry{
		ID:             row.ID,
		MemberID:       row.MemberID,
		Currency:       row.Currency,
		Delta:          row.Delta,
		Kind:           ledger.Kind(row.Kind),
		Source:         row.Source,
		SourceID:       row.SourceID,
		Memo:           row.Memo,
		IdempotencyKey: row.IdempotencyKey,
		CreatedAt:      row.CreatedAt,
	}
}

type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const insertLedgerEntrySQL = `
INSERT INTO ledger_entries (id, member_id, currency, delta, kind, source, source_id, memo, idempotency_key, created_at)
VALUES (:id, :member_id, :currency, :delta, :kind, :source, :source_id, :memo, :idempotency_key, :created_at)
ON CONFLICT (idempotency_key) DO NOTHING`

const getLedgerEntryByKeySQL = `
SELECT id, member_id, currency, delta, kind, source, source_id, memo, idempotency_key, created_at
FROM ledger_entries
WHERE idempotency_key = $1`

// Insert appends one entry. A collision on the unique idempotency_key index
// is not an error: the pre-existing entry is returned with inserted=false.
// The insert swallows the conflict with DO NOTHING rather than catching
// 23505, which would abort the surrounding transaction.
func (r *LedgerRepository) Insert(ctx context.Context, entry ledger.Entry) (ledger.Entry, bool, error) {
	q := resolveQueryer(ctx, r.db)

	row := ledgerEntryTableModel{
		ID:             entry.ID,
		MemberID:       entry.MemberID,
		Currency:       entry.Currency,
		Delta:          entry.Delta,
		Kind:           string(entry.Kind),
		Source:         entry.Source,
		SourceID:       entry.SourceID,
		Memo:           entry.Memo,
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt,
	}

	res, err := sqlx.NamedExecContext(ctx, q, insertLedgerEntrySQL, row)
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("insert ledger entry result: %w", err)
	}
	if inserted == 0 {
		var existing ledgerEntryTableModel
		if err := q.GetContext(ctx, &existing, getLedgerEntryByKeySQL, entry.IdempotencyKey); err != nil {
			return ledger.Entry{}, false, fmt.Errorf("get colliding ledger entry: %w", err)
		}
		return ledgerEntryFromRow(existing), false, nil
	}

	return entry, true, nil
}

const postedSumSQL = `
SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE member_id = $1`

func (r *LedgerRepository) PostedSum(ctx context.Context, memberID string) (int64, error) {
	q := resolveQueryer(ctx, r.db)

	var sum int64
	if err := q.GetContext(ctx, &sum, postedSumSQL, memberID); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

const listRecentLedgerSQL = `
SELECT id, member_id, currency, delta, kind, source, source_id, memo, idempotency_key, created_at
FROM ledger_entries
WHERE member_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

func (r *LedgerRepository) ListRecent(ctx context.Context, memberID string, limit int) ([]ledger.Entry, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []ledgerEntryTableModel
	if err := q.SelectContext(ctx, &rows, listRecentLedgerSQL, memberID, limit); err != nil {
		return nil, fmt.Errorf("list recent ledger entries: %w", err)
	}

	out := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledgerEntryFromRow(row))
	}
	return out, nil
}

const listLedgerBySourceSQL = `
SELECT id, member_id, currency, delta, kind, source, source_id, memo, idempotency_key, created_at
FROM ledger_entries
WHERE source = $1 AND source_id = $2
ORDER BY created_at, id`

func (r *LedgerRepository) ListBySource(ctx context.Context, source, sourceID string) ([]ledger.Entry, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []ledgerEntryTableModel
	if err := q.SelectContext(ctx, &rows, listLedgerBySourceSQL, source, sourceID); err != nil {
		return nil, fmt.Errorf("list ledger entries by source: %w", err)
	}

	out := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledgerEntryFromRow(row))
	}
	return out, nil
}
