package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/withdrawal"
)

type WithdrawalRepository struct {
	mu    sync.RWMutex
	items map[string]withdrawal.Withdrawal
}

func NewWithdrawalRepository() *WithdrawalRepository {
	return &WithdrawalRepository{items: make(map[string]withdrawal.Withdrawal)}
}

func (r *WithdrawalRepository) Insert(_ context.Context, w withdrawal.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[w.ID] = w
	return nil
}

func (r *WithdrawalRepository) GetForUpdate(_ context.Context, id string) (withdrawal.Withdrawal, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.items[id]
	return w, ok, nil
}

func (r *WithdrawalRepository) SetStatus(_ context.Context, id string, status withdrawal.Status, extRef string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.items[id]
	if !ok {
		return nil
	}
	w.Status = status
	if extRef != "" {
		w.ExtRef = extRef
	}
	w.UpdatedAt = at
	r.items[id] = w
	return nil
}

func (r *WithdrawalRepository) ListByMember(_ context.Context, memberID string, limit int) ([]withdrawal.Withdrawal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []withdrawal.Withdrawal
	for _, w := range r.items {
		if w.MemberID == memberID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
