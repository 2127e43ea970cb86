package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/hold"
)

type HoldRepository struct {
	mu    sync.RWMutex
	items map[string]hold.Hold
}

func NewHoldRepository() *HoldRepository {
	return &HoldRepository{items: make(map[string]hold.Hold)}
}

func (r *HoldRepository) Insert(_ context.Context, h hold.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[h.ID] = h
	return nil
}

func (r *HoldRepository) GetForUpdate(_ context.Context, id string) (hold.Hold, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.items[id]
	return h, ok, nil
}

func (r *HoldRepository) Transition(_ context.Context, id string, from, to hold.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.items[id]
	if !ok || h.Status != from {
		return false, nil
	}

	h.Status = to
	switch to {
	case hold.StatusCaptured:
		h.CapturedAt = &at
	case hold.StatusReleased:
		h.ReleasedAt = &at
	}
	r.items[id] = h
	return true, nil
}

func (r *HoldRepository) ActiveSum(_ context.Context, memberID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum int64
	for _, h := range r.items {
		if h.MemberID == memberID && h.Active() {
			sum += h.Amount
		}
	}
	return sum, nil
}

func (r *HoldRepository) ListByRef(_ context.Context, refType, refID string) ([]hold.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []hold.Hold
	for _, h := range r.items {
		if h.RefType == refType && h.RefID == refID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
