package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
)

type sideKey struct {
	challengeID string
	side        int
}

type ChallengeRepository struct {
	mu         sync.RWMutex
	challenges map[string]challenge.Challenge
	sides      map[sideKey]challenge.Side
	events     []challenge.Event
	nextEvent  int64
}

func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{
		challenges: make(map[string]challenge.Challenge),
		sides:      make(map[sideKey]challenge.Side),
		nextEvent:  1,
	}
}

func (r *ChallengeRepository) Insert(_ context.Context, c challenge.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[c.ID]; ok {
		return fmt.Errorf("%w: id %s", challenge.ErrDuplicate, c.ID)
	}
	r.challenges[c.ID] = c
	return nil
}

func (r *ChallengeRepository) Get(_ context.Context, id string) (challenge.Challenge, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	return c, ok, nil
}

func (r *ChallengeRepository) GetForUpdate(ctx context.Context, id string) (challenge.Challenge, bool, error) {
	return r.Get(ctx, id)
}

func (r *ChallengeRepository) GetByClientID(_ context.Context, clientID string) (challenge.Challenge, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if clientID == "" {
		return challenge.Challenge{}, false, nil
	}
	var found challenge.Challenge
	var ok bool
	for _, c := range r.challenges {
		if c.ClientID != clientID {
			continue
		}
		if !ok || c.CreatedAt.Before(found.CreatedAt) {
			found = c
			ok = true
		}
	}
	return found, ok, nil
}

func (r *ChallengeRepository) SetStake(_ context.Context, id string, stake int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil
	}
	c.StakePoints = stake
	c.UpdatedAt = at
	r.challenges[id] = c
	return nil
}

func (r *ChallengeRepository) SetStatus(_ context.Context, id string, status challenge.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil
	}
	c.Status = status
	c.UpdatedAt = at
	r.challenges[id] = c
	return nil
}

func (r *ChallengeRepository) List(_ context.Context, filter challenge.Filter) ([]challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []challenge.Challenge
	for _, c := range r.challenges {
		if filter.Season != 0 && c.Season != filter.Season {
			continue
		}
		if filter.LeagueID != "" || filter.TeamID != "" {
			if !r.sideMatches(c.ID, filter) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *ChallengeRepository) sideMatches(challengeID string, filter challenge.Filter) bool {
	for key, s := range r.sides {
		if key.challengeID != challengeID {
			continue
		}
		if filter.LeagueID != "" && s.LeagueID != filter.LeagueID {
			continue
		}
		if filter.TeamID != "" && s.TeamID != filter.TeamID {
			continue
		}
		return true
	}
	return false
}

func (r *ChallengeRepository) GetSide(_ context.Context, challengeID string, side int) (challenge.Side, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sides[sideKey{challengeID, side}]
	if !ok {
		return challenge.Side{}, false, nil
	}
	return cloneSide(s), true, nil
}

func (r *ChallengeRepository) GetSideForUpdate(ctx context.Context, challengeID string, side int) (challenge.Side, bool, error) {
	return r.GetSide(ctx, challengeID, side)
}

func (r *ChallengeRepository) ListSides(_ context.Context, challengeID string) ([]challenge.Side, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []challenge.Side
	for key, s := range r.sides {
		if key.challengeID == challengeID {
			out = append(out, cloneSide(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Side < out[j].Side })
	return out, nil
}

func (r *ChallengeRepository) UpsertSide(_ context.Context, s challenge.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sides[sideKey{s.ChallengeID, s.Side}] = cloneSide(s)
	return nil
}

func (r *ChallengeRepository) SetSidePoints(_ context.Context, challengeID string, side int, points float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sideKey{challengeID, side}
	s, ok := r.sides[key]
	if !ok {
		return nil
	}
	s.PointsFinal = &points
	r.sides[key] = s
	return nil
}

func (r *ChallengeRepository) AppendEvent(_ context.Context, e challenge.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = r.nextEvent
	r.nextEvent++
	r.events = append(r.events, e)
	return nil
}

func (r *ChallengeRepository) ListEvents(_ context.Context, challengeID string) ([]challenge.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []challenge.Event
	for _, e := range r.events {
		if e.ChallengeID == challengeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func cloneSide(s challenge.Side) challenge.Side {
	out := s
	out.Lineup = append([]challenge.Slot(nil), s.Lineup...)
	out.Bench = append([]challenge.Slot(nil), s.Bench...)
	if s.LockedAt != nil {
		at := *s.LockedAt
		out.LockedAt = &at
	}
	if s.PointsFinal != nil {
		pts := *s.PointsFinal
		out.PointsFinal = &pts
	}
	return out
}
