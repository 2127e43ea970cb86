package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
	"github.com/fortifiedfantasy/duels/internal/domain/hold"
	"github.com/fortifiedfantasy/duels/internal/domain/ledger"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

// SettlementMode selects where per-side totals come from.
type SettlementMode string

const (
	// ModeClientScored trusts the pts values the client stored on the
	// locked lineup.
	ModeClientScored SettlementMode = "client"
	// ModeServerScored recomputes totals from the upstream fantasy feed.
	ModeServerScored SettlementMode = "server"
)

// ScoringProfileHouseTake marks loss-only challenges: both stakes go to the
// house and the winner keeps only bragging rights.
const ScoringProfileHouseTake = "house-take"

// SettlementOutcome summarizes one finished settlement.
type SettlementOutcome struct {
	ChallengeID string  `json:"challengeId"`
	Status      string  `json:"status"`
	WinnerSide  int     `json:"winnerSide"` // 0 on tie
	Points1     float64 `json:"points1"`
	Points2     float64 `json:"points2"`
	Pot         int64   `json:"pot"`
	Payout      int64   `json:"payout"`
	Rake        int64   `json:"rake"`
	Tie         bool    `json:"tie"`
}

// SettlementService resolves a locked challenge: it writes final points,
// captures or releases the stake holds and posts the payout and rake
// entries, all inside one transaction. Re-running a settlement is a no-op
// past the first completed run.
type SettlementService struct {
	tx         TxManager
	challenges challenge.Repository
	wallet     *WalletService
	fetcher    ScoreFetcher
	creds      CredentialSource
	mode       SettlementMode
	rake       Rake
	houseID    string
	logger     *logging.Logger
	now        func() time.Time
}

func NewSettlementService(
	tx TxManager,
	challenges challenge.Repository,
	wallet *WalletService,
	fetcher ScoreFetcher,
	creds CredentialSource,
	mode SettlementMode,
	rake Rake,
	houseAccountID string,
	logger *logging.Logger,
) *SettlementService {
	if logger == nil {
		logger = logging.Default()
	}
	if mode != ModeServerScored {
		mode = ModeClientScored
	}
	return &SettlementService{
		tx:         tx,
		challenges: challenges,
		wallet:     wallet,
		fetcher:    fetcher,
		creds:      creds,
		mode:       mode,
		rake:       rake,
		houseID:    houseAccountID,
		logger:     logger,
		now:        time.Now,
	}
}

// Settle drives a challenge through scored into closed. Upstream totals are
// fetched before the transaction opens; everything financial happens inside
// it, so either all postings land or none do.
func (s *SettlementService) Settle(ctx context.Context, challengeID string) (SettlementOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SettlementService.Settle")
	defer span.End()

	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return SettlementOutcome{}, fmt.Errorf("%w: challenge id is required", ErrBadArgs)
	}

	ch, sides, err := s.loadSettleable(ctx, challengeID)
	if err != nil {
		return SettlementOutcome{}, err
	}
	if ch.Status == challenge.StatusClosed {
		return s.closedOutcome(ch, sides), nil
	}

	var points [2]float64
	if s.mode == ModeServerScored {
		points, err = s.fetchPoints(ctx, ch, sides)
		if err != nil {
			return SettlementOutcome{}, err
		}
	}

	var out SettlementOutcome
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var txErr error
		out, txErr = s.settleInTx(ctx, challengeID, points)
		return txErr
	})
	if err != nil {
		return SettlementOutcome{}, err
	}

	s.logger.InfoContext(ctx, "challenge settled",
		"challenge_id", out.ChallengeID,
		"winner_side", out.WinnerSide,
		"tie", out.Tie,
		"pot", out.Pot,
		"payout", out.Payout,
		"rake", out.Rake,
	)
	return out, nil
}

// SettleDue settles a batch of challenges over a shared worker pool. One
// failing challenge does not stop the rest; the first error is reported
// after the batch drains.
func (s *SettlementService) SettleDue(ctx context.Context, challengeIDs []string, workers int) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SettlementService.SettleDue")
	defer span.End()

	if len(challengeIDs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 4
	}

	antsPool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("create settlement worker pool: %w", err)
	}
	defer antsPool.Release()

	errs := make(chan error, len(challengeIDs))
	for _, id := range challengeIDs {
		id := id
		submitErr := antsPool.Submit(func() {
			if _, err := s.Settle(ctx, id); err != nil {
				s.logger.WarnContext(ctx, "batch settlement failed",
					"challenge_id", id,
					"error", err,
				)
				errs <- fmt.Errorf("settle %s: %w", id, err)
				return
			}
			errs <- nil
		})
		if submitErr != nil {
			errs <- fmt.Errorf("submit settle %s: %w", id, submitErr)
		}
	}

	var first error
	for range challengeIDs {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *SettlementService) loadSettleable(ctx context.Context, challengeID string) (challenge.Challenge, []challenge.Side, error) {
	ch, found, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return challenge.Challenge{}, nil, fmt.Errorf("get challenge: %w", err)
	}
	if !found {
		return challenge.Challenge{}, nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	if ch.Status == challenge.StatusVoided {
		return challenge.Challenge{}, nil, fmt.Errorf("%w: challenge %s is voided", ErrBadState, challengeID)
	}

	sides, err := s.challenges.ListSides(ctx, challengeID)
	if err != nil {
		return challenge.Challenge{}, nil, fmt.Errorf("list sides: %w", err)
	}
	if ch.Status != challenge.StatusClosed {
		if len(sides) != 2 || !sides[0].Locked() || !sides[1].Locked() {
			return challenge.Challenge{}, nil, fmt.Errorf("%w: challenge %s does not have two locked sides", ErrBadState, challengeID)
		}
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i].Side < sides[j].Side })
	return ch, sides, nil
}

// fetchPoints pulls server-authoritative per-side totals; both upstream
// fetches run concurrently. Sides already scored by an earlier partial run
// keep their stored value. Client-scored totals are not computed here —
// they are summed inside the transaction from the row-locked lineups.
func (s *SettlementService) fetchPoints(ctx context.Context, ch challenge.Challenge, sides []challenge.Side) ([2]float64, error) {
	var points [2]float64

	if s.fetcher == nil {
		return points, fmt.Errorf("%w: server-authoritative scoring is not configured", ErrUpstream)
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, side := range sides {
		i, side := i, side
		if side.PointsFinal != nil {
			points[i] = *side.PointsFinal
			continue
		}
		p.Go(func(ctx context.Context) error {
			total, err := s.fetchSideTotal(ctx, ch, side)
			if err != nil {
				return err
			}
			points[i] = total
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return points, err
	}
	return points, nil
}

func (s *SettlementService) fetchSideTotal(ctx context.Context, ch challenge.Challenge, side challenge.Side) (float64, error) {
	var cred UpstreamCredential
	if s.creds != nil {
		var err error
		cred, err = s.creds.LeagueCredential(ctx, side.LeagueID)
		if err != nil {
			return 0, fmt.Errorf("resolve league credential: %w", err)
		}
	}

	rosters, err := s.fetcher.FetchLeagueWeek(ctx, cred, ch.Season, side.LeagueID, ch.Week)
	if err != nil {
		return 0, err
	}
	for _, roster := range rosters {
		if roster.TeamID == side.TeamID {
			return StartersTotal(roster.Entries), nil
		}
	}
	return 0, fmt.Errorf("%w: team %s not found in league %s week %d", ErrUpstream, side.TeamID, side.LeagueID, ch.Week)
}

// settleInTx re-validates state under the challenge row lock and applies
// the full financial resolution. Lock order: challenge, sides ascending,
// holds ascending by id.
func (s *SettlementService) settleInTx(ctx context.Context, challengeID string, points [2]float64) (SettlementOutcome, error) {
	ch, found, err := s.challenges.GetForUpdate(ctx, challengeID)
	if err != nil {
		return SettlementOutcome{}, fmt.Errorf("get challenge for update: %w", err)
	}
	if !found {
		return SettlementOutcome{}, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	if ch.Status == challenge.StatusVoided {
		return SettlementOutcome{}, fmt.Errorf("%w: challenge %s is voided", ErrBadState, challengeID)
	}

	sides := make([]challenge.Side, 0, 2)
	for _, sideNo := range []int{1, 2} {
		side, found, err := s.challenges.GetSideForUpdate(ctx, challengeID, sideNo)
		if err != nil {
			return SettlementOutcome{}, fmt.Errorf("get side for update: %w", err)
		}
		if !found {
			return SettlementOutcome{}, fmt.Errorf("%w: side %d of challenge %s", ErrNotFound, sideNo, challengeID)
		}
		sides = append(sides, side)
	}

	if ch.Status == challenge.StatusClosed {
		return s.closedOutcome(ch, sides), nil
	}

	// A side scored by an earlier partial run keeps its stored value. Client
	// totals are summed from the lineup re-read under the row lock, so a
	// re-lock racing the settlement cannot slip in stale points.
	for i := range sides {
		if sides[i].PointsFinal != nil {
			points[i] = *sides[i].PointsFinal
			continue
		}
		if s.mode == ModeClientScored {
			points[i] = challenge.StartersPoints(sides[i].Lineup)
		}
		if err := s.challenges.SetSidePoints(ctx, challengeID, sides[i].Side, points[i]); err != nil {
			return SettlementOutcome{}, fmt.Errorf("set side points: %w", err)
		}
		sides[i].PointsFinal = &points[i]
	}

	now := s.now().UTC()
	if ch.Status != challenge.StatusScored {
		if err := s.challenges.SetStatus(ctx, challengeID, challenge.StatusScored, now); err != nil {
			return SettlementOutcome{}, fmt.Errorf("set challenge scored: %w", err)
		}
		if err := s.appendEvent(ctx, challengeID, challenge.EventScore, map[string]any{
			"points1": points[0],
			"points2": points[1],
			"mode":    string(s.mode),
		}); err != nil {
			return SettlementOutcome{}, err
		}
	}

	out := SettlementOutcome{
		ChallengeID: challengeID,
		Points1:     points[0],
		Points2:     points[1],
		Tie:         points[0] == points[1],
	}
	if !out.Tie {
		out.WinnerSide = 1
		if points[1] > points[0] {
			out.WinnerSide = 2
		}
	}

	holds, err := s.orderedHolds(ctx, challengeID)
	if err != nil {
		return SettlementOutcome{}, err
	}

	if out.Tie {
		for _, h := range holds {
			if !h.Active() {
				continue
			}
			if err := s.wallet.ReleaseHold(ctx, h.ID); err != nil {
				return SettlementOutcome{}, err
			}
		}
	} else if ch.StakePoints > 0 {
		if err := verifyStakeHolds(ch, sides, holds); err != nil {
			return SettlementOutcome{}, err
		}
		for _, h := range holds {
			if err := s.wallet.CaptureHold(ctx, h.ID); err != nil {
				return SettlementOutcome{}, err
			}
		}
		if err := s.postResolution(ctx, ch, sides[out.WinnerSide-1], &out); err != nil {
			return SettlementOutcome{}, err
		}
	}

	if err := s.challenges.SetStatus(ctx, challengeID, challenge.StatusClosed, s.now().UTC()); err != nil {
		return SettlementOutcome{}, fmt.Errorf("set challenge closed: %w", err)
	}
	out.Status = string(challenge.StatusClosed)
	if err := s.appendEvent(ctx, challengeID, challenge.EventSettle, map[string]any{
		"winnerSide": out.WinnerSide,
		"tie":        out.Tie,
		"pot":        out.Pot,
		"payout":     out.Payout,
		"rake":       out.Rake,
	}); err != nil {
		return SettlementOutcome{}, err
	}

	return out, nil
}

// verifyStakeHolds confirms a decisive pot is fully funded before anything
// is captured: each side owner needs an unreleased stake hold for exactly
// StakePoints. Paying out an underfunded challenge would mint points.
func verifyStakeHolds(ch challenge.Challenge, sides []challenge.Side, holds []hold.Hold) error {
	for _, side := range sides {
		funded := false
		for _, h := range holds {
			if h.MemberID == side.OwnerMemberID && h.Amount == ch.StakePoints && h.Status != hold.StatusReleased {
				funded = true
				break
			}
		}
		if !funded {
			return fmt.Errorf("%w: side %d of challenge %s has no stake hold", ErrBadState, side.Side, ch.ID)
		}
	}
	return nil
}

// postResolution posts the payout and rake (or the house take) for a
// decisive outcome. All keys derive from the challenge, so re-posting
// collides as a no-op.
func (s *SettlementService) postResolution(ctx context.Context, ch challenge.Challenge, winner challenge.Side, out *SettlementOutcome) error {
	out.Pot = ch.StakePoints * 2

	if ch.ScoringProfileID == ScoringProfileHouseTake {
		// Loss-only mode: the loser's stake goes to the house, the winner
		// already had their own stake captured and gets nothing back.
		if _, err := s.wallet.Post(ctx, ledger.Entry{
			MemberID:       s.houseID,
			Delta:          ch.StakePoints,
			Kind:           ledger.KindDuelsHouseTake,
			Source:         HoldRefTypeDuel,
			SourceID:       ch.ID,
			Memo:           "house take",
			IdempotencyKey: ledger.IdempotencyKey(string(ledger.KindDuelsHouseTake), ch.ID, s.houseID, ch.StakePoints),
		}); err != nil {
			return err
		}
		return nil
	}

	payout, rakeAmount := s.rake.Split(out.Pot)
	out.Payout = payout
	out.Rake = rakeAmount

	if payout > 0 {
		if _, err := s.wallet.Post(ctx, ledger.Entry{
			MemberID:       winner.OwnerMemberID,
			Delta:          payout,
			Kind:           ledger.KindDuelsPayout,
			Source:         HoldRefTypeDuel,
			SourceID:       ch.ID,
			Memo:           fmt.Sprintf("duel payout side %d", winner.Side),
			IdempotencyKey: ledger.IdempotencyKey(string(ledger.KindDuelsPayout), ch.ID, winner.OwnerMemberID, payout),
		}); err != nil {
			return err
		}
	}
	if rakeAmount > 0 {
		if _, err := s.wallet.Post(ctx, ledger.Entry{
			MemberID:       s.houseID,
			Delta:          rakeAmount,
			Kind:           ledger.KindRake,
			Source:         HoldRefTypeDuel,
			SourceID:       ch.ID,
			Memo:           "duel rake",
			IdempotencyKey: ledger.IdempotencyKey(string(ledger.KindRake), ch.ID, s.houseID, rakeAmount),
		}); err != nil {
			return err
		}
	}
	return nil
}

// orderedHolds lists the stake holds ascending by id, matching the fixed
// lock order.
func (s *SettlementService) orderedHolds(ctx context.Context, challengeID string) ([]hold.Hold, error) {
	holds, err := s.wallet.HoldsForRef(ctx, HoldRefTypeDuel, challengeID)
	if err != nil {
		return nil, err
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].ID < holds[j].ID })
	return holds, nil
}

func (s *SettlementService) closedOutcome(ch challenge.Challenge, sides []challenge.Side) SettlementOutcome {
	out := SettlementOutcome{ChallengeID: ch.ID, Status: string(ch.Status)}
	for _, side := range sides {
		if side.PointsFinal == nil {
			continue
		}
		if side.Side == 1 {
			out.Points1 = *side.PointsFinal
		} else {
			out.Points2 = *side.PointsFinal
		}
	}
	out.Tie = out.Points1 == out.Points2
	if !out.Tie {
		out.WinnerSide = 1
		if out.Points2 > out.Points1 {
			out.WinnerSide = 2
		}
	}
	return out
}

func (s *SettlementService) appendEvent(ctx context.Context, challengeID string, typ challenge.EventType, data map[string]any) error {
	encoded, err := encodeEventData(data)
	if err != nil {
		return err
	}
	if err := s.challenges.AppendEvent(ctx, challenge.Event{
		ChallengeID: challengeID,
		Type:        typ,
		Data:        encoded,
		CreatedAt:   s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("append challenge event: %w", err)
	}
	return nil
}
