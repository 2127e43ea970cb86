package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/domain/member"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

type stubFetcher struct {
	rosters []TeamRoster
	err     error
	calls   int
	creds   []UpstreamCredential
}

func (s *stubFetcher) FetchLeagueWeek(_ context.Context, cred UpstreamCredential, _ int, _ string, _ int) ([]TeamRoster, error) {
	s.calls++
	s.creds = append(s.creds, cred)
	if s.err != nil {
		return nil, s.err
	}
	return s.rosters, nil
}

type settlementFixture struct {
	*challengeFixture
	fetcher *stubFetcher
	svc     *SettlementService
}

func newSettlementFixture(t *testing.T, mode SettlementMode, rake Rake) *settlementFixture {
	t.Helper()
	f := &settlementFixture{
		challengeFixture: newChallengeFixture(t),
		fetcher:          &stubFetcher{},
	}
	f.svc = NewSettlementService(
		f.tx,
		f.challenges,
		f.wallet,
		f.fetcher,
		StaticCredential{Cred: UpstreamCredential{SWID: "{swid}", ESPNS2: "s2"}},
		mode,
		rake,
		testHouse,
		logging.NewNop(),
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

// pendingChallenge funds both members and locks both sides at the given
// stake, leaving the challenge pending and ready to settle.
func (f *settlementFixture) pendingChallenge(t *testing.T, stake int64, base1, base2 float64, profile string) string {
	t.Helper()
	ctx := context.Background()
	f.fund(t, testMemberA, 2000)
	f.fund(t, testMemberB, 2000)

	in := claimLockInput("", 1, stake, base1)
	in.ScoringProfileID = profile
	out, err := f.challengeFixture.svc.ClaimLock(ctx, member.Principal{MemberID: testMemberA}, in)
	if err != nil {
		t.Fatalf("claim-lock side 1: %v", err)
	}
	chID := out.Challenge.ID

	in = claimLockInput(chID, 2, 0, base2)
	if _, err := f.challengeFixture.svc.ClaimLock(ctx, member.Principal{MemberID: testMemberB}, in); err != nil {
		t.Fatalf("claim-lock side 2: %v", err)
	}
	return chID
}

func (f *settlementFixture) balance(t *testing.T, memberID string) ledger.Balance {
	t.Helper()
	balance, err := f.wallet.Balance(context.Background(), memberID)
	if err != nil {
		t.Fatalf("balance %s: %v", memberID, err)
	}
	return balance
}

func TestSettleDecisiveWithRake(t *testing.T) {
	t.Parallel()

	rake, err := ParseRake("9/200")
	if err != nil {
		t.Fatalf("parse rake: %v", err)
	}
	f := newSettlementFixture(t, ModeClientScored, rake)
	chID := f.pendingChallenge(t, 1000, 10, 20, "")

	out, err := f.svc.Settle(context.Background(), chID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.Status != string(challenge.StatusClosed) {
		t.Fatalf("unexpected status: got=%s want=%s", out.Status, challenge.StatusClosed)
	}
	if out.WinnerSide != 2 || out.Tie {
		t.Fatalf("unexpected winner: %+v", out)
	}
	if out.Points1 != 36 || out.Points2 != 66 {
		t.Fatalf("unexpected points: got=(%v,%v) want=(36,66)", out.Points1, out.Points2)
	}
	if out.Pot != 2000 || out.Payout != 1910 || out.Rake != 90 {
		t.Fatalf("unexpected money split: %+v", out)
	}

	if got := f.balance(t, testMemberA); got.Posted != 1000 || got.Locked != 0 {
		t.Fatalf("unexpected loser balance: %+v", got)
	}
	if got := f.balance(t, testMemberB); got.Posted != 2910 || got.Locked != 0 {
		t.Fatalf("unexpected winner balance: %+v", got)
	}
	if got := f.balance(t, testHouse); got.Posted != 90 {
		t.Fatalf("unexpected house balance: %+v", got)
	}
}

func TestSettleRerunIsNoOp(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("9/200")
	f := newSettlementFixture(t, ModeClientScored, rake)
	chID := f.pendingChallenge(t, 1000, 10, 20, "")
	ctx := context.Background()

	first, err := f.svc.Settle(ctx, chID)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	entriesAfterFirst := len(f.ledgers.All())

	second, err := f.svc.Settle(ctx, chID)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.WinnerSide != first.WinnerSide || second.Tie != first.Tie {
		t.Fatalf("re-run changed the outcome: first=%+v second=%+v", first, second)
	}
	if got := len(f.ledgers.All()); got != entriesAfterFirst {
		t.Fatalf("re-run touched the ledger: got=%d want=%d entries", got, entriesAfterFirst)
	}
	if got := f.balance(t, testMemberB); got.Posted != 2910 {
		t.Fatalf("unexpected winner balance after re-run: %+v", got)
	}
}

func TestSettleTieReleasesHolds(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("9/200")
	f := newSettlementFixture(t, ModeClientScored, rake)
	chID := f.pendingChallenge(t, 1000, 15, 15, "")

	out, err := f.svc.Settle(context.Background(), chID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !out.Tie || out.WinnerSide != 0 {
		t.Fatalf("expected a tie, got %+v", out)
	}
	if out.Pot != 0 || out.Payout != 0 || out.Rake != 0 {
		t.Fatalf("tie must not move points: %+v", out)
	}

	for _, memberID := range []string{testMemberA, testMemberB} {
		if got := f.balance(t, memberID); got.Posted != 2000 || got.Locked != 0 {
			t.Fatalf("unexpected %s balance after tie: %+v", memberID, got)
		}
	}
	for _, e := range f.ledgers.All() {
		if e.Kind == ledger.KindStakeCaptured || e.Kind == ledger.KindDuelsPayout || e.Kind == ledger.KindRake {
			t.Fatalf("tie posted a settlement entry: %+v", e)
		}
	}
}

func TestSettleHouseTakeProfile(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("9/200")
	f := newSettlementFixture(t, ModeClientScored, rake)
	chID := f.pendingChallenge(t, 1000, 10, 20, ScoringProfileHouseTake)

	out, err := f.svc.Settle(context.Background(), chID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.WinnerSide != 2 {
		t.Fatalf("unexpected winner: %+v", out)
	}
	if out.Payout != 0 || out.Rake != 0 {
		t.Fatalf("house take must not pay out: %+v", out)
	}

	// Both stakes are captured; only the loser's stake lands at the house.
	if got := f.balance(t, testMemberA); got.Posted != 1000 {
		t.Fatalf("unexpected loser balance: %+v", got)
	}
	if got := f.balance(t, testMemberB); got.Posted != 1000 {
		t.Fatalf("unexpected winner balance: %+v", got)
	}
	if got := f.balance(t, testHouse); got.Posted != 1000 {
		t.Fatalf("unexpected house balance: %+v", got)
	}
}

func TestSettleServerScored(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("0")
	f := newSettlementFixture(t, ModeServerScored, rake)
	chID := f.pendingChallenge(t, 1000, 0, 0, "")

	f.fetcher.rosters = []TeamRoster{
		{TeamID: "team-1", Entries: []RosterEntry{
			{PlayerID: 1, LineupSlotID: 0, AppliedTotal: 18.5},
			{PlayerID: 2, LineupSlotID: 2, AppliedTotal: 11.5},
			{PlayerID: 3, LineupSlotID: 20, AppliedTotal: 40}, // bench, excluded
		}},
		{TeamID: "team-2", Entries: []RosterEntry{
			{PlayerID: 4, LineupSlotID: 0, AppliedTotal: 9},
			{PlayerID: 5, LineupSlotID: 21, AppliedTotal: 33}, // IR, excluded
		}},
	}

	out, err := f.svc.Settle(context.Background(), chID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.Points1 != 30 || out.Points2 != 9 {
		t.Fatalf("unexpected server-scored points: got=(%v,%v) want=(30,9)", out.Points1, out.Points2)
	}
	if out.WinnerSide != 1 {
		t.Fatalf("unexpected winner: %+v", out)
	}
	if f.fetcher.calls != 2 {
		t.Fatalf("unexpected fetch count: got=%d want=2", f.fetcher.calls)
	}
	for _, cred := range f.fetcher.creds {
		if cred.SWID != "{swid}" || cred.ESPNS2 != "s2" {
			t.Fatalf("credential not threaded to the fetcher: %+v", cred)
		}
	}
	// Zero rake: the whole pot goes to the winner.
	if got := f.balance(t, testMemberA); got.Posted != 3000 {
		t.Fatalf("unexpected winner balance: %+v", got)
	}
}

func TestSettleServerScoredUpstreamFailure(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("0")
	f := newSettlementFixture(t, ModeServerScored, rake)
	chID := f.pendingChallenge(t, 1000, 0, 0, "")
	f.fetcher.err = ErrUpstreamTimeout

	_, err := f.svc.Settle(context.Background(), chID)
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}

	// Nothing financial may happen before scores are in hand.
	if got := f.balance(t, testMemberA); got.Posted != 2000 || got.Locked != 1000 {
		t.Fatalf("failed settle moved points: %+v", got)
	}
}

func TestSettleStateGuards(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("0")
	f := newSettlementFixture(t, ModeClientScored, rake)
	ctx := context.Background()

	if _, err := f.svc.Settle(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown challenge, got %v", err)
	}
	if _, err := f.svc.Settle(ctx, "  "); !errors.Is(err, ErrBadArgs) {
		t.Fatalf("expected ErrBadArgs for blank id, got %v", err)
	}

	// One locked side is not settleable.
	f.fund(t, testMemberA, 2000)
	out, err := f.challengeFixture.svc.ClaimLock(ctx, member.Principal{MemberID: testMemberA}, claimLockInput("", 1, 1000, 10))
	if err != nil {
		t.Fatalf("claim-lock: %v", err)
	}
	if _, err := f.svc.Settle(ctx, out.Challenge.ID); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for a half-locked challenge, got %v", err)
	}

	// Voided challenges stay untouched.
	if _, err := f.challengeFixture.svc.Void(ctx, member.Principal{MemberID: "admin", Admin: true}, out.Challenge.ID); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := f.svc.Settle(ctx, out.Challenge.ID); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for a voided challenge, got %v", err)
	}
}

func TestSettleDueBatch(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("0")
	f := newSettlementFixture(t, ModeClientScored, rake)
	ctx := context.Background()

	ch1 := f.pendingChallenge(t, 100, 10, 20, "")

	f.fund(t, testMemberA, 500)
	f.fund(t, testMemberB, 500)
	in := claimLockInput("", 1, 100, 20)
	out, err := f.challengeFixture.svc.ClaimLock(ctx, member.Principal{MemberID: testMemberA}, in)
	if err != nil {
		t.Fatalf("claim-lock: %v", err)
	}
	ch2 := out.Challenge.ID
	if _, err := f.challengeFixture.svc.ClaimLock(ctx, member.Principal{MemberID: testMemberB}, claimLockInput(ch2, 2, 0, 10)); err != nil {
		t.Fatalf("claim-lock side 2: %v", err)
	}

	if err := f.svc.SettleDue(ctx, []string{ch1, ch2}, 2); err != nil {
		t.Fatalf("settle due: %v", err)
	}
	for _, id := range []string{ch1, ch2} {
		got, _, err := f.challenges.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got.Status != challenge.StatusClosed {
			t.Fatalf("challenge %s not closed: got=%s", id, got.Status)
		}
	}
}

func TestSettleDueReportsFirstError(t *testing.T) {
	t.Parallel()

	rake, _ := ParseRake("0")
	f := newSettlementFixture(t, ModeClientScored, rake)
	ctx := context.Background()

	chID := f.pendingChallenge(t, 100, 10, 20, "")
	err := f.svc.SettleDue(ctx, []string{"missing", chID}, 2)
	if err == nil {
		t.Fatal("expected an error from the failing challenge")
	}

	// The healthy challenge still settles.
	got, _, getErr := f.challenges.Get(ctx, chID)
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if got.Status != challenge.StatusClosed {
		t.Fatalf("healthy challenge not closed: got=%s", got.Status)
	}

	if err := f.svc.SettleDue(ctx, nil, 2); err != nil {
		t.Fatalf("empty batch must be a no-op: %v", err)
	}
}

func TestSettleRejectsUnderfundedChallenge(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, ModeClientScored, Rake{})
	ctx := context.Background()
	f.fund(t, testMemberB, 500)

	// A staked challenge whose first side locked before the stake existed:
	// only member B holds points against it.
	lockedAt := testNow
	ch := challenge.Challenge{
		ID:          "ch-underfunded",
		Season:      testSeason,
		Week:        testWeek,
		Status:      challenge.StatusPending,
		StakePoints: 100,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if err := f.challenges.Insert(ctx, ch); err != nil {
		t.Fatalf("insert challenge: %v", err)
	}
	for i, owner := range []string{testMemberA, testMemberB} {
		side := challenge.Side{
			ChallengeID:   ch.ID,
			Side:          i + 1,
			LeagueID:      "league-1",
			TeamID:        "team-" + string(rune('1'+i)),
			OwnerMemberID: owner,
			Lineup:        testLineup(float64(10 * (i + 1))),
			LockedAt:      &lockedAt,
		}
		if err := f.challenges.UpsertSide(ctx, side); err != nil {
			t.Fatalf("upsert side %d: %v", i+1, err)
		}
	}
	if _, err := f.wallet.PlaceHold(ctx, testMemberB, 100, HoldRefTypeDuel, ch.ID); err != nil {
		t.Fatalf("place hold: %v", err)
	}

	_, err := f.svc.Settle(ctx, ch.ID)
	if !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState for a missing stake hold, got %v", err)
	}

	// No money moved: the funded stake is still merely held and the
	// unfunded winner received nothing.
	if got := f.balance(t, testMemberB); got.Posted != 500 || got.Locked != 100 {
		t.Fatalf("funded member's balance changed: %+v", got)
	}
	if got := f.balance(t, testMemberA); got.Posted != 0 {
		t.Fatalf("unfunded member was paid: %+v", got)
	}
	if got := f.balance(t, testHouse); got.Posted != 0 {
		t.Fatalf("house was paid: %+v", got)
	}
}

func TestSettleClientPointsComeFromLockedLineups(t *testing.T) {
	t.Parallel()

	f := newSettlementFixture(t, ModeClientScored, Rake{})
	chID := f.pendingChallenge(t, 1000, 10, 20, "")

	// Totals handed to the transactional step are ignored in client mode;
	// it sums the lineups re-read under the row lock, so a re-lock racing
	// the settlement cannot leave stale points behind.
	var out SettlementOutcome
	err := f.tx.WithinTx(context.Background(), func(ctx context.Context) error {
		var txErr error
		out, txErr = f.svc.settleInTx(ctx, chID, [2]float64{999, 0})
		return txErr
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if out.Points1 != 36 || out.Points2 != 66 {
		t.Fatalf("points not taken from locked lineups: got=(%v,%v) want=(36,66)", out.Points1, out.Points2)
	}
	if out.WinnerSide != 2 {
		t.Fatalf("unexpected winner: got=%d want=2", out.WinnerSide)
	}
}
