package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
	"github.com/fortifiedfantasy/duels/internal/domain/member"
	idgen "github.com/fortifiedfantasy/duels/internal/platform/id"
	"github.com/fortifiedfantasy/duels/internal/platform/logging"
)

// HoldRefTypeDuel tags holds and ledger sources that belong to a challenge.
const HoldRefTypeDuel = "duels"

// SettlementScheduler enqueues a deferred settle callback once a challenge
// has both sides locked. Optional; nil disables scheduling.
type SettlementScheduler interface {
	ScheduleSettle(ctx context.Context, challengeID string, delay time.Duration) error
}

// PeriodProvider returns the configured current (season, week) used as
// fallback scoring period and for the past-week guard.
type PeriodProvider func() (season, week int)

// ClaimInput carries everything a claim / claim-lock / lock mutation needs.
type ClaimInput struct {
	ChallengeID      string
	ClientID         string
	Side             int
	PlatformCode     string
	Season           int
	Week             int
	ScoringProfileID string
	LeagueID         string
	TeamID           string
	TeamName         string
	Stake            int64
	Force            bool
	Lineup           []challenge.Slot
	Bench            []challenge.Slot
}

// ChallengeAggregate is the read model for one challenge.
type ChallengeAggregate struct {
	Challenge challenge.Challenge
	Sides     []challenge.Side
	Events    []challenge.Event
}

// ChallengeService drives the per-matchup state machine
// {open → pending → locked → scored → closed / voided} and orchestrates
// holds on claim-lock. Every mutation is one transaction; rows lock in the
// order challenge → sides ascending → holds.
type ChallengeService struct {
	tx         TxManager
	challenges challenge.Repository
	wallet     *WalletService
	ids        idgen.Generator
	scheduler  SettlementScheduler
	period     PeriodProvider
	logger     *logging.Logger
	now        func() time.Time
}

func NewChallengeService(
	tx TxManager,
	challenges challenge.Repository,
	wallet *WalletService,
	ids idgen.Generator,
	period PeriodProvider,
	logger *logging.Logger,
) *ChallengeService {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChallengeService{
		tx:         tx,
		challenges: challenges,
		wallet:     wallet,
		ids:        ids,
		period:     period,
		logger:     logger,
		now:        time.Now,
	}
}

// SetScheduler wires the optional settlement scheduler.
func (s *ChallengeService) SetScheduler(scheduler SettlementScheduler) {
	s.scheduler = scheduler
}

// Create builds a challenge explicitly, without claiming a side.
func (s *ChallengeService) Create(ctx context.Context, actor member.Principal, in ClaimInput) (challenge.Challenge, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.Create")
	defer span.End()

	if err := s.normalizePeriod(&in); err != nil {
		return challenge.Challenge{}, err
	}
	if in.Stake < 0 {
		return challenge.Challenge{}, fmt.Errorf("%w: stake cannot be negative", ErrBadArgs)
	}

	var created challenge.Challenge
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, _, err = s.resolveChallenge(ctx, in)
		if err != nil {
			return err
		}
		return s.appendEvent(ctx, created.ID, actor.MemberID, challenge.EventCreate, map[string]any{
			"season": created.Season,
			"week":   created.Week,
			"stake":  created.StakePoints,
		})
	})
	if err != nil {
		return challenge.Challenge{}, err
	}

	return created, nil
}

// Claim takes ownership of one side. Re-claiming an owned side by the same
// member is a no-op upsert; a different member gets CONFLICT unless the
// caller is an administrator forcing the override.
func (s *ChallengeService) Claim(ctx context.Context, actor member.Principal, in ClaimInput) (ChallengeAggregate, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.Claim")
	defer span.End()

	if err := s.validateClaim(actor, &in); err != nil {
		return ChallengeAggregate{}, err
	}

	var out ChallengeAggregate
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ch, _, err := s.resolveChallenge(ctx, in)
		if err != nil {
			return err
		}
		if ch.Status != challenge.StatusOpen {
			return fmt.Errorf("%w: challenge %s is %s", ErrBadState, ch.ID, ch.Status)
		}
		ch, err = s.applyStake(ctx, ch, in.Stake)
		if err != nil {
			return err
		}
		if _, err := s.claimSide(ctx, ch, actor, in, false); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, ch.ID, actor.MemberID, challenge.EventClaim, claimEventData(in)); err != nil {
			return err
		}
		out, err = s.loadAggregate(ctx, ch.ID)
		return err
	})
	if err != nil {
		return ChallengeAggregate{}, err
	}

	return out, nil
}

// ClaimLock claims a side, records its lineup, locks it and places the
// stake hold, all in one transaction. When the hold cannot be placed the
// whole operation fails and no side mutation persists.
func (s *ChallengeService) ClaimLock(ctx context.Context, actor member.Principal, in ClaimInput) (ChallengeAggregate, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.ClaimLock")
	defer span.End()

	if err := s.validateClaim(actor, &in); err != nil {
		return ChallengeAggregate{}, err
	}
	if len(in.Lineup) == 0 {
		return ChallengeAggregate{}, fmt.Errorf("%w: lineup is required to lock", ErrBadArgs)
	}

	var out ChallengeAggregate
	var becamePending bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ch, _, err := s.resolveChallenge(ctx, in)
		if err != nil {
			return err
		}
		if ch.Status != challenge.StatusOpen && ch.Status != challenge.StatusPending {
			return fmt.Errorf("%w: challenge %s is %s", ErrBadState, ch.ID, ch.Status)
		}
		ch, err = s.applyStake(ctx, ch, in.Stake)
		if err != nil {
			return err
		}

		side, err := s.claimSide(ctx, ch, actor, in, true)
		if err != nil {
			return err
		}

		if ch.StakePoints > 0 {
			if _, err := s.wallet.PlaceHold(ctx, side.OwnerMemberID, ch.StakePoints, HoldRefTypeDuel, ch.ID); err != nil {
				return err
			}
		}

		becamePending, err = s.promoteWhenBothLocked(ctx, ch)
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, ch.ID, actor.MemberID, challenge.EventClaimLock, claimEventData(in)); err != nil {
			return err
		}
		out, err = s.loadAggregate(ctx, ch.ID)
		return err
	})
	if err != nil {
		return ChallengeAggregate{}, err
	}

	s.maybeScheduleSettle(ctx, out.Challenge.ID, becamePending)
	return out, nil
}

// Lock records a lineup on an already-claimed side. The stake hold is placed
// lazily here when claim-lock did not place one.
func (s *ChallengeService) Lock(ctx context.Context, actor member.Principal, challengeID string, sideNo int, lineup, bench []challenge.Slot) (ChallengeAggregate, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.Lock")
	defer span.End()

	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return ChallengeAggregate{}, fmt.Errorf("%w: challenge id is required", ErrBadArgs)
	}
	if sideNo != 1 && sideNo != 2 {
		return ChallengeAggregate{}, fmt.Errorf("%w: side must be 1 or 2", ErrBadArgs)
	}
	if len(lineup) == 0 {
		return ChallengeAggregate{}, fmt.Errorf("%w: lineup is required to lock", ErrBadArgs)
	}

	var out ChallengeAggregate
	var becamePending bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ch, found, err := s.challenges.GetForUpdate(ctx, challengeID)
		if err != nil {
			return fmt.Errorf("get challenge for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
		}
		if ch.Status != challenge.StatusOpen && ch.Status != challenge.StatusPending {
			return fmt.Errorf("%w: challenge %s is %s", ErrBadState, ch.ID, ch.Status)
		}

		side, found, err := s.challenges.GetSideForUpdate(ctx, challengeID, sideNo)
		if err != nil {
			return fmt.Errorf("get side for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: side %d of challenge %s", ErrNotFound, sideNo, challengeID)
		}
		if side.OwnerMemberID == "" {
			return fmt.Errorf("%w: side %d is unclaimed", ErrBadState, sideNo)
		}
		if side.OwnerMemberID != actor.MemberID && !actor.Admin {
			return fmt.Errorf("%w: side %d belongs to another member", ErrForbidden, sideNo)
		}

		now := s.now().UTC()
		side.Lineup = lineup
		side.Bench = bench
		side.LockedAt = &now
		if err := s.challenges.UpsertSide(ctx, side); err != nil {
			return fmt.Errorf("upsert side: %w", err)
		}

		if ch.StakePoints > 0 {
			if _, err := s.wallet.PlaceHold(ctx, side.OwnerMemberID, ch.StakePoints, HoldRefTypeDuel, ch.ID); err != nil {
				return err
			}
		}

		becamePending, err = s.promoteWhenBothLocked(ctx, ch)
		if err != nil {
			return err
		}
		if err := s.appendEvent(ctx, ch.ID, actor.MemberID, challenge.EventLock, map[string]any{
			"side":        sideNo,
			"lineupSize":  len(lineup),
			"benchSize":   len(bench),
			"stakePoints": ch.StakePoints,
		}); err != nil {
			return err
		}
		out, err = s.loadAggregate(ctx, ch.ID)
		return err
	})
	if err != nil {
		return ChallengeAggregate{}, err
	}

	s.maybeScheduleSettle(ctx, challengeID, becamePending)
	return out, nil
}

// Void cancels a non-terminal challenge administratively. Active holds are
// released; the ledger is untouched.
func (s *ChallengeService) Void(ctx context.Context, actor member.Principal, challengeID string) (ChallengeAggregate, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.Void")
	defer span.End()

	if !actor.Admin {
		return ChallengeAggregate{}, fmt.Errorf("%w: void requires administrative identity", ErrForbidden)
	}

	var out ChallengeAggregate
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ch, found, err := s.challenges.GetForUpdate(ctx, challengeID)
		if err != nil {
			return fmt.Errorf("get challenge for update: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
		}
		if ch.Status.Terminal() {
			return fmt.Errorf("%w: challenge %s is %s", ErrBadState, ch.ID, ch.Status)
		}

		holds, err := s.wallet.HoldsForRef(ctx, HoldRefTypeDuel, ch.ID)
		if err != nil {
			return err
		}
		for _, h := range holds {
			if !h.Active() {
				continue
			}
			if err := s.wallet.ReleaseHold(ctx, h.ID); err != nil {
				return err
			}
		}

		if err := s.challenges.SetStatus(ctx, ch.ID, challenge.StatusVoided, s.now().UTC()); err != nil {
			return fmt.Errorf("set challenge status: %w", err)
		}
		if err := s.appendEvent(ctx, ch.ID, actor.MemberID, challenge.EventVoid, map[string]any{
			"from": string(ch.Status),
		}); err != nil {
			return err
		}
		out, err = s.loadAggregate(ctx, ch.ID)
		return err
	})
	if err != nil {
		return ChallengeAggregate{}, err
	}

	return out, nil
}

// Get loads the aggregate view of one challenge.
func (s *ChallengeService) Get(ctx context.Context, challengeID string) (ChallengeAggregate, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.Get")
	defer span.End()

	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		return ChallengeAggregate{}, fmt.Errorf("%w: challenge id is required", ErrBadArgs)
	}

	_, found, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return ChallengeAggregate{}, fmt.Errorf("get challenge: %w", err)
	}
	if !found {
		return ChallengeAggregate{}, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}

	return s.loadAggregate(ctx, challengeID)
}

// List filters challenges by season / league / team.
func (s *ChallengeService) List(ctx context.Context, filter challenge.Filter) ([]challenge.Challenge, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ChallengeService.List")
	defer span.End()

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, err := s.challenges.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return items, nil
}

func (s *ChallengeService) validateClaim(actor member.Principal, in *ClaimInput) error {
	if in.Side != 1 && in.Side != 2 {
		return fmt.Errorf("%w: side must be 1 or 2", ErrBadArgs)
	}
	in.LeagueID = strings.TrimSpace(in.LeagueID)
	in.TeamID = strings.TrimSpace(in.TeamID)
	if in.LeagueID == "" || in.TeamID == "" {
		return fmt.Errorf("%w: league id and team id are required", ErrBadArgs)
	}
	if in.Stake < 0 {
		return fmt.Errorf("%w: stake cannot be negative", ErrBadArgs)
	}
	if in.Force && !actor.Admin {
		return fmt.Errorf("%w: force claim requires administrative identity", ErrForbidden)
	}
	if in.PlatformCode == "" {
		in.PlatformCode = "espn"
	}
	return s.normalizePeriod(in)
}

// normalizePeriod fills season/week defaults and rejects past weeks.
func (s *ChallengeService) normalizePeriod(in *ClaimInput) error {
	curSeason, curWeek := s.period()
	if in.Season == 0 {
		in.Season = curSeason
	}
	if in.Week == 0 {
		in.Week = curWeek
	}
	if in.Season < curSeason || (in.Season == curSeason && in.Week < curWeek) {
		return fmt.Errorf("%w: week %d of season %d", ErrPastWeek, in.Week, in.Season)
	}
	return nil
}

// resolveChallenge finds or lazily creates the challenge row, locking it.
func (s *ChallengeService) resolveChallenge(ctx context.Context, in ClaimInput) (challenge.Challenge, bool, error) {
	if id := strings.TrimSpace(in.ChallengeID); id != "" {
		ch, found, err := s.challenges.GetForUpdate(ctx, id)
		if err != nil {
			return challenge.Challenge{}, false, fmt.Errorf("get challenge for update: %w", err)
		}
		if found {
			return ch, false, nil
		}
		return s.createChallenge(ctx, id, in)
	}

	if clientID := strings.TrimSpace(in.ClientID); clientID != "" {
		ch, found, err := s.challenges.GetByClientID(ctx, clientID)
		if err != nil {
			return challenge.Challenge{}, false, fmt.Errorf("get challenge by client id: %w", err)
		}
		if found {
			// Re-read under lock; client-id lookup itself is not locking.
			locked, _, err := s.challenges.GetForUpdate(ctx, ch.ID)
			if err != nil {
				return challenge.Challenge{}, false, fmt.Errorf("get challenge for update: %w", err)
			}
			return locked, false, nil
		}
	}

	newID, err := s.ids.NewID()
	if err != nil {
		return challenge.Challenge{}, false, fmt.Errorf("generate challenge id: %w", err)
	}
	return s.createChallenge(ctx, newID, in)
}

func (s *ChallengeService) createChallenge(ctx context.Context, id string, in ClaimInput) (challenge.Challenge, bool, error) {
	now := s.now().UTC()
	ch := challenge.Challenge{
		ID:               id,
		ClientID:         strings.TrimSpace(in.ClientID),
		Season:           in.Season,
		Week:             in.Week,
		ScoringProfileID: in.ScoringProfileID,
		Status:           challenge.StatusOpen,
		StakePoints:      in.Stake,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.challenges.Insert(ctx, ch); err != nil {
		if errors.Is(err, challenge.ErrDuplicate) {
			// Lost a creation race; the winner's row is the challenge.
			return challenge.Challenge{}, false, fmt.Errorf("%w: challenge %s was created concurrently", ErrConflict, id)
		}
		return challenge.Challenge{}, false, fmt.Errorf("insert challenge: %w", err)
	}
	return ch, true, nil
}

// applyStake overwrites the stake only while it is still zero and no side
// has locked yet. A raise after a lock would leave the locked side without
// a matching hold, and settlement would then pay out unfunded points.
func (s *ChallengeService) applyStake(ctx context.Context, ch challenge.Challenge, stake int64) (challenge.Challenge, error) {
	if stake <= 0 || ch.StakePoints != 0 {
		return ch, nil
	}
	sides, err := s.challenges.ListSides(ctx, ch.ID)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("list sides: %w", err)
	}
	for _, side := range sides {
		if side.Locked() {
			return challenge.Challenge{}, fmt.Errorf("%w: stake is fixed once a side has locked", ErrBadState)
		}
	}
	if err := s.challenges.SetStake(ctx, ch.ID, stake, s.now().UTC()); err != nil {
		return challenge.Challenge{}, fmt.Errorf("set challenge stake: %w", err)
	}
	ch.StakePoints = stake
	return ch, nil
}

// claimSide upserts a side under its row lock, enforcing ownership.
func (s *ChallengeService) claimSide(ctx context.Context, ch challenge.Challenge, actor member.Principal, in ClaimInput, lock bool) (challenge.Side, error) {
	side, found, err := s.challenges.GetSideForUpdate(ctx, ch.ID, in.Side)
	if err != nil {
		return challenge.Side{}, fmt.Errorf("get side for update: %w", err)
	}
	if found && side.OwnerMemberID != "" && side.OwnerMemberID != actor.MemberID && !in.Force {
		return challenge.Side{}, fmt.Errorf("%w: side %d already claimed", ErrConflict, in.Side)
	}
	if !found {
		side = challenge.Side{ChallengeID: ch.ID, Side: in.Side}
	}

	side.PlatformCode = in.PlatformCode
	side.Season = in.Season
	side.LeagueID = in.LeagueID
	side.TeamID = in.TeamID
	if in.TeamName != "" {
		side.TeamName = in.TeamName
	}
	side.OwnerMemberID = actor.MemberID

	if lock {
		now := s.now().UTC()
		side.Lineup = in.Lineup
		side.Bench = in.Bench
		side.LockedAt = &now
	}

	if err := s.challenges.UpsertSide(ctx, side); err != nil {
		return challenge.Side{}, fmt.Errorf("upsert side: %w", err)
	}
	return side, nil
}

// promoteWhenBothLocked moves the challenge to pending once both sides have
// committed lineups. Settlement re-verifies the stake holds before capture.
func (s *ChallengeService) promoteWhenBothLocked(ctx context.Context, ch challenge.Challenge) (bool, error) {
	if ch.Status != challenge.StatusOpen {
		return false, nil
	}
	sides, err := s.challenges.ListSides(ctx, ch.ID)
	if err != nil {
		return false, fmt.Errorf("list sides: %w", err)
	}
	if len(sides) != 2 || !sides[0].Locked() || !sides[1].Locked() {
		return false, nil
	}
	if err := s.challenges.SetStatus(ctx, ch.ID, challenge.StatusPending, s.now().UTC()); err != nil {
		return false, fmt.Errorf("set challenge status: %w", err)
	}
	return true, nil
}

func (s *ChallengeService) appendEvent(ctx context.Context, challengeID, actorID string, typ challenge.EventType, data map[string]any) error {
	encoded, err := encodeEventData(data)
	if err != nil {
		return err
	}
	if err := s.challenges.AppendEvent(ctx, challenge.Event{
		ChallengeID:   challengeID,
		ActorMemberID: actorID,
		Type:          typ,
		Data:          encoded,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("append challenge event: %w", err)
	}
	return nil
}

func (s *ChallengeService) loadAggregate(ctx context.Context, challengeID string) (ChallengeAggregate, error) {
	ch, found, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return ChallengeAggregate{}, fmt.Errorf("get challenge: %w", err)
	}
	if !found {
		return ChallengeAggregate{}, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	sides, err := s.challenges.ListSides(ctx, challengeID)
	if err != nil {
		return ChallengeAggregate{}, fmt.Errorf("list sides: %w", err)
	}
	events, err := s.challenges.ListEvents(ctx, challengeID)
	if err != nil {
		return ChallengeAggregate{}, fmt.Errorf("list events: %w", err)
	}
	return ChallengeAggregate{Challenge: ch, Sides: sides, Events: events}, nil
}

func (s *ChallengeService) maybeScheduleSettle(ctx context.Context, challengeID string, becamePending bool) {
	if !becamePending || s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleSettle(ctx, challengeID, 0); err != nil {
		s.logger.WarnContext(ctx, "schedule settle callback failed",
			"challenge_id", challengeID,
			"error", err,
		)
	}
}

func encodeEventData(data map[string]any) ([]byte, error) {
	encoded, err := sonic.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return encoded, nil
}

func claimEventData(in ClaimInput) map[string]any {
	data := map[string]any{
		"side":     in.Side,
		"season":   in.Season,
		"week":     in.Week,
		"leagueId": in.LeagueID,
		"teamId":   in.TeamID,
		"stake":    in.Stake,
	}
	if in.Force {
		data["force"] = true
	}
	if len(in.Lineup) > 0 {
		data["lineupSize"] = len(in.Lineup)
	}
	return data
}
