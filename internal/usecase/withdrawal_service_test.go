package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/domain/member"
	"github.com/fortifiedfantasy/duels/internal/domain/withdrawal"
	"github.com/fortifiedfantasy/duels/internal/infrastructure/repository/memory"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

type withdrawalFixture struct {
	*walletFixture
	withdrawals *memory.WithdrawalRepository
	svc         *WithdrawalService
}

func newWithdrawalFixture(t *testing.T) *withdrawalFixture {
	t.Helper()
	f := &withdrawalFixture{
		walletFixture: newWalletFixture(t),
		withdrawals:   memory.NewWithdrawalRepository(),
	}
	f.svc = NewWithdrawalService(
		f.tx,
		f.withdrawals,
		f.wallet,
		&seqIDGen{prefix: "wd"},
		[]string{"paypal", "venmo"},
		logging.NewNop(),
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestWithdrawalRequestValidation(t *testing.T) {
	t.Parallel()

	f := newWithdrawalFixture(t)
	ctx := context.Background()
	actor := member.Principal{MemberID: testMemberA}
	f.fund(t, testMemberA, 500)

	cases := []struct {
		name        string
		amount      int64
		method      string
		destination string
	}{
		{name: "zero amount", amount: 0, method: "paypal", destination: "a@b.c"},
		{name: "negative amount", amount: -5, method: "paypal", destination: "a@b.c"},
		{name: "unknown method", amount: 100, method: "wire", destination: "a@b.c"},
		{name: "missing destination", amount: 100, method: "paypal", destination: "  "},
	}
	for _, tc := range cases {
		if _, err := f.svc.Request(ctx, actor, tc.amount, tc.method, tc.destination); !errors.Is(err, ErrBadArgs) {
			t.Fatalf("%s: expected ErrBadArgs, got %v", tc.name, err)
		}
	}

	if _, err := f.svc.Request(ctx, actor, 501, "paypal", "a@b.c"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds over the balance, got %v", err)
	}

	// Method comparison is case-insensitive.
	w, err := f.svc.Request(ctx, actor, 500, "PayPal", "a@b.c")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if w.Status != withdrawal.StatusRequested || w.Method != "paypal" {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
}

func TestWithdrawalRequestDoesNotReserve(t *testing.T) {
	t.Parallel()

	f := newWithdrawalFixture(t)
	ctx := context.Background()
	actor := member.Principal{MemberID: testMemberA}
	f.fund(t, testMemberA, 500)

	if _, err := f.svc.Request(ctx, actor, 500, "paypal", "a@b.c"); err != nil {
		t.Fatalf("request: %v", err)
	}

	// The request holds nothing, so the full balance is still spendable
	// and a second full-balance request passes the availability check.
	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Available != 500 || balance.Locked != 0 {
		t.Fatalf("request reserved points: %+v", balance)
	}
	if _, err := f.svc.Request(ctx, actor, 500, "venmo", "@handle"); err != nil {
		t.Fatalf("second request: %v", err)
	}
}

func TestWithdrawalPayDebitsOnce(t *testing.T) {
	t.Parallel()

	f := newWithdrawalFixture(t)
	ctx := context.Background()
	actor := member.Principal{MemberID: testMemberA}
	admin := member.Principal{MemberID: "ops", Admin: true}
	f.fund(t, testMemberA, 500)

	w, err := f.svc.Request(ctx, actor, 300, "paypal", "a@b.c")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := f.svc.Pay(ctx, actor, w.ID, "batch-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin pay, got %v", err)
	}

	paid, err := f.svc.Pay(ctx, admin, w.ID, "batch-1")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != withdrawal.StatusPaid || paid.ExtRef != "batch-1" {
		t.Fatalf("unexpected paid withdrawal: %+v", paid)
	}

	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Posted != 200 {
		t.Fatalf("unexpected balance after pay: %+v", balance)
	}

	if _, err := f.svc.Pay(ctx, admin, w.ID, "batch-2"); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState on double pay, got %v", err)
	}
	debits := 0
	for _, e := range f.ledgers.All() {
		if e.Kind == ledger.KindWithdrawal {
			debits++
		}
	}
	if debits != 1 {
		t.Fatalf("unexpected withdrawal debit count: got=%d want=1", debits)
	}

	if _, err := f.svc.Pay(ctx, admin, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown withdrawal, got %v", err)
	}
}

func TestWithdrawalListByMember(t *testing.T) {
	t.Parallel()

	f := newWithdrawalFixture(t)
	ctx := context.Background()
	actor := member.Principal{MemberID: testMemberA}
	f.fund(t, testMemberA, 1000)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Request(ctx, actor, 100, "paypal", "a@b.c"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	items, err := f.svc.ListByMember(ctx, testMemberA, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("limit not applied: got=%d want=2", len(items))
	}

	items, err = f.svc.ListByMember(ctx, testMemberB, 0)
	if err != nil {
		t.Fatalf("list other member: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("unexpected cross-member leak: %+v", items)
	}
}

func TestWithdrawalPayRechecksAvailableBalance(t *testing.T) {
	t.Parallel()

	f := newWithdrawalFixture(t)
	ctx := context.Background()
	f.fund(t, testMemberA, 500)

	w, err := f.svc.Request(ctx, member.Principal{MemberID: testMemberA}, 400, "paypal", "a@example.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// The request reserved nothing; a stake hold placed since then leaves
	// too little to pay out.
	if _, err := f.wallet.PlaceHold(ctx, testMemberA, 300, HoldRefTypeDuel, "ch-77"); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	_, err = f.svc.Pay(ctx, member.Principal{MemberID: "ops", Admin: true}, w.ID, "ext-1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing was debited and the withdrawal is still payable later.
	balance, err := f.wallet.Balance(ctx, testMemberA)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Posted != 500 || balance.Locked != 300 {
		t.Fatalf("balance changed on rejected pay: %+v", balance)
	}
	items, err := f.svc.ListByMember(ctx, testMemberA, 10)
	if err != nil {
		t.Fatalf("list withdrawals: %v", err)
	}
	if len(items) != 1 || items[0].Status != withdrawal.StatusRequested {
		t.Fatalf("unexpected withdrawal state: %+v", items)
	}
}
