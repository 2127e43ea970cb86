package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/infrastructure/repository/memory"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

type donationFixture struct {
	*walletFixture
	donations *memory.DonationRepository
	svc       *DonationService
}

func newDonationFixture(t *testing.T, resolver MemberResolver) *donationFixture {
	t.Helper()
	f := &donationFixture{
		walletFixture: newWalletFixture(t),
		donations:     memory.NewDonationRepository(),
	}
	f.svc = NewDonationService(f.tx, f.donations, f.wallet, resolver, 100, logging.NewNop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestDonationIngestCreditsPoints(t *testing.T) {
	t.Parallel()

	f := newDonationFixture(t, nil)
	ctx := context.Background()

	d, err := f.svc.Ingest(ctx, DonationIngestInput{
		PaymentID:   "pay-1",
		AmountCents: 2500,
		Currency:    "USD",
		DonorEmail:  "donor@example.com",
		MemberHint:  testMemberA,
		RawPayload:  []byte(`{"id":"pay-1"}`),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if d.CreditedMemberID != testMemberA {
		t.Fatalf("unexpected credited member: got=%q want=%q", d.CreditedMemberID, testMemberA)
	}

	// $25.00 at 100 points per dollar.
	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Posted != 2500 {
		t.Fatalf("unexpected credited points: got=%d want=2500", balance.Posted)
	}
}

func TestDonationRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	f := newDonationFixture(t, nil)
	ctx := context.Background()

	in := DonationIngestInput{
		PaymentID:   "pay-1",
		AmountCents: 2500,
		MemberHint:  testMemberA,
	}
	if _, err := f.svc.Ingest(ctx, in); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := f.svc.Ingest(ctx, in); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	credits := 0
	for _, e := range f.ledgers.All() {
		if e.Kind == ledger.KindDonationCredit {
			credits++
		}
	}
	if credits != 1 {
		t.Fatalf("redelivery double-credited: got=%d entries want=1", credits)
	}

	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Posted != 2500 {
		t.Fatalf("unexpected balance after redelivery: got=%d want=2500", balance.Posted)
	}
}

func TestDonationIngestValidation(t *testing.T) {
	t.Parallel()

	f := newDonationFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, DonationIngestInput{AmountCents: 100}); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs without payment id, got %v", err)
	}
	if _, err := f.svc.Ingest(ctx, DonationIngestInput{PaymentID: "pay-1", AmountCents: 0}); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs for non-positive amount, got %v", err)
	}
}

func TestDonationSyncCreditsBacklog(t *testing.T) {
	t.Parallel()

	// The resolver only knows verified donor emails; the hint is useless
	// here, so the first delivery parks each donation uncredited.
	known := map[string]string{}
	resolver := MemberResolverFunc(func(_ context.Context, _, donorEmail string) (string, error) {
		return known[donorEmail], nil
	})
	f := newDonationFixture(t, resolver)
	ctx := context.Background()

	for _, in := range []DonationIngestInput{
		{PaymentID: "pay-1", AmountCents: 1000, DonorEmail: "a@example.com"},
		{PaymentID: "pay-2", AmountCents: 500, DonorEmail: "b@example.com"},
	} {
		d, err := f.svc.Ingest(ctx, in)
		if err != nil {
			t.Fatalf("ingest %s: %v", in.PaymentID, err)
		}
		if d.Credited() {
			t.Fatalf("unmappable donation credited early: %+v", d)
		}
	}

	// One donor verifies their email; the next sync picks them up.
	known["a@example.com"] = testMemberA
	credited, err := f.svc.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if credited != 1 {
		t.Fatalf("unexpected credited count: got=%d want=1", credited)
	}

	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Posted != 1000 {
		t.Fatalf("unexpected credited points: got=%d want=1000", balance.Posted)
	}

	// Re-running moves nothing further.
	credited, err = f.svc.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if credited != 0 {
		t.Fatalf("second sync re-credited: got=%d want=0", credited)
	}
}
