package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fortifiedfantasy/duels/internal/domain/donation"
)

type DonationRepository struct {
	mu    sync.RWMutex
	items map[string]donation.Donation
}

func NewDonationRepository() *DonationRepository {
	return &DonationRepository{items: make(map[string]donation.Donation)}
}

func (r *DonationRepository) Upsert(_ context.Context, d donation.Donation) (donation.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[d.PaymentID]
	if !ok {
		r.items[d.PaymentID] = cloneDonation(d)
		return cloneDonation(d), nil
	}
	if d.MemberHint != "" {
		existing.MemberHint = d.MemberHint
		r.items[d.PaymentID] = existing
	}
	return cloneDonation(existing), nil
}

func (r *DonationRepository) Get(_ context.Context, paymentID string) (donation.Donation, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.items[paymentID]
	if !ok {
		return donation.Donation{}, false, nil
	}
	return cloneDonation(d), true, nil
}

func (r *DonationRepository) ListUncredited(_ context.Context, limit int) ([]donation.Donation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []donation.Donation
	for _, d := range r.items {
		if !d.Credited() {
			out = append(out, cloneDonation(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentID < out[j].PaymentID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DonationRepository) MarkCredited(_ context.Context, paymentID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.items[paymentID]
	if !ok || d.Credited() {
		return nil
	}
	d.CreditedMemberID = memberID
	r.items[paymentID] = d
	return nil
}

func cloneDonation(d donation.Donation) donation.Donation {
	out := d
	out.RawPayload = append([]byte(nil), d.RawPayload...)
	return out
}
