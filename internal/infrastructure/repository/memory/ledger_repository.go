package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
)

type LedgerRepository struct {
	mu      sync.RWMutex
	entries []ledger.Entry
	byKey   map[string]int
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{byKey: make(map[string]int)}
}

func (r *LedgerRepository) Insert(_ context.Context, entry ledger.Entry) (ledger.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byKey[entry.IdempotencyKey]; ok {
		return r.entries[idx], false, nil
	}

	r.byKey[entry.IdempotencyKey] = len(r.entries)
	r.entries = append(r.entries, entry)
	return entry, true, nil
}

func (r *LedgerRepository) PostedSum(_ context.Context, memberID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum int64
	for _, e := range r.entries {
		if e.MemberID == memberID {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (r *LedgerRepository) ListRecent(_ context.Context, memberID string, limit int) ([]ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ledger.Entry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].MemberID == memberID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

func (r *LedgerRepository) ListBySource(_ context.Context, source, sourceID string) ([]ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range r.entries {
		if e.Source == source && e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// All returns a copy of every entry, oldest first. Test helper.
func (r *LedgerRepository) All() []ledger.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ledger.Entry(nil), r.entries...)
}
