package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
)

type challengeTableModel struct {
	ID               string    `db:"id"`
	ClientID         string    `db:"client_id"`
	Season           int       `db:"season"`
	Week             int       `db:"week"`
	ScoringProfileID string    `db:"scoring_profile_id"`
	Status           string    `db:"status"`
	StakePoints      int64     `db:"stake_points"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func challengeFromRow(row challengeTableModel) challenge.Challenge {
	return challenge.Challenge{
		ID:               row.ID,
		ClientID:         row.ClientID,
		Season:           row.Season,
		Week:             row.Week,
		ScoringProfileID: row.ScoringProfileID,
		Status:           challenge.Status(row.Status),
		StakePoints:      row.StakePoints,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

type challengeSideTableModel struct {
	ChallengeID   string     `db:"challenge_id"`
	Side          int        `db:"side"`
	PlatformCode  string     `db:"platform_code"`
	Season        int        `db:"season"`
	LeagueID      string     `db:"league_id"`
	TeamID        string     `db:"team_id"`
	TeamName      string     `db:"team_name"`
	OwnerMemberID string     `db:"owner_member_id"`
	Lineup        []byte     `db:"lineup"`
	Bench         []byte     `db:"bench"`
	LockedAt      *time.Time `db:"locked_at"`
	PointsFinal   *float64   `db:"points_final"`
}

func sideFromRow(row challengeSideTableModel) (challenge.Side, error) {
	side := challenge.Side{
		ChallengeID:   row.ChallengeID,
		Side:          row.Side,
		PlatformCode:  row.PlatformCode,
		Season:        row.Season,
		LeagueID:      row.LeagueID,
		TeamID:        row.TeamID,
		TeamName:      row.TeamName,
		OwnerMemberID: row.OwnerMemberID,
		LockedAt:      row.LockedAt,
		PointsFinal:   row.PointsFinal,
	}
	if len(row.Lineup) > 0 {
		if err := sonic.Unmarshal(row.Lineup, &side.Lineup); err != nil {
			return challenge.Side{}, fmt.Errorf("decode lineup: %w", err)
		}
	}
	if len(row.Bench) > 0 {
		if err := sonic.Unmarshal(row.Bench, &side.Bench); err != nil {
			return challenge.Side{}, fmt.Errorf("decode bench: %w", err)
		}
	}
	return side, nil
}

func sideToRow(s challenge.Side) (challengeSideTableModel, error) {
	lineup, err := sonic.Marshal(s.Lineup)
	if err != nil {
		return challengeSideTableModel{}, fmt.Errorf("encode lineup: %w", err)
	}
	bench, err := sonic.Marshal(s.Bench)
	if err != nil {
		return challengeSideTableModel{}, fmt.Errorf("encode bench: %w", err)
	}
	return challengeSideTableModel{
		ChallengeID:   s.ChallengeID,
		Side:          s.Side,
		PlatformCode:  s.PlatformCode,
		Season:        s.Season,
		LeagueID:      s.LeagueID,
		TeamID:        s.TeamID,
		TeamName:      s.TeamName,
		OwnerMemberID: s.OwnerMemberID,
		Lineup:        lineup,
		Bench:         bench,
		LockedAt:      s.LockedAt,
		PointsFinal:   s.PointsFinal,
	}, nil
}

type challengeEventTableModel struct {
	ID            int64     `db:"id"`
	ChallengeID   string    `db:"challenge_id"`
	ActorMemberID string    `db:"actor_member_id"`
	Type          string    `db:"type"`
	Data          []byte    `db:"data"`
	CreatedAt     time.Time `db:"created_at"`
}

type ChallengeRepository struct {
	db *sqlx.DB
}

func NewChallengeRepository(db *sqlx.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const insertChallengeSQL = `
INSERT INTO challenges (id, client_id, season, week, scoring_profile_id, status, stake_points, created_at, updated_at)
VALUES (:id, :client_id, :season, :week, :scoring_profile_id, :status, :stake_points, :created_at, :updated_at)`

func (r *ChallengeRepository) Insert(ctx context.Context, c challenge.Challenge) error {
	q := resolveQueryer(ctx, r.db)

	row := challengeTableModel{
		ID:               c.ID,
		ClientID:         c.ClientID,
		Season:           c.Season,
		Week:             c.Week,
		ScoringProfileID: c.ScoringProfileID,
		Status:           string(c.Status),
		StakePoints:      c.StakePoints,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, q, insertChallengeSQL, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: id %s", challenge.ErrDuplicate, c.ID)
		}
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

const challengeColumns = `id, client_id, season, week, scoring_profile_id, status, stake_points, created_at, updated_at`

func (r *ChallengeRepository) Get(ctx context.Context, id string) (challenge.Challenge, bool, error) {
	return r.get(ctx, id, false)
}

func (r *ChallengeRepository) GetForUpdate(ctx context.Context, id string) (challenge.Challenge, bool, error) {
	return r.get(ctx, id, true)
}

func (r *ChallengeRepository) get(ctx context.Context, id string, forUpdate bool) (challenge.Challenge, bool, error) {
	q := resolveQueryer(ctx, r.db)

	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row challengeTableModel
	if err := q.GetContext(ctx, &row, query, id); err != nil {
		if isNotFound(err) {
			return challenge.Challenge{}, false, nil
		}
		return challenge.Challenge{}, false, fmt.Errorf("get challenge: %w", err)
	}
	return challengeFromRow(row), true, nil
}

const getChallengeByClientIDSQL = `
SELECT ` + challengeColumns + `
FROM challenges
WHERE client_id = $1 AND client_id <> ''
ORDER BY created_at
LIMIT 1`

func (r *ChallengeRepository) GetByClientID(ctx context.Context, clientID string) (challenge.Challenge, bool, error) {
	q := resolveQueryer(ctx, r.db)

	var row challengeTableModel
	if err := q.GetContext(ctx, &row, getChallengeByClientIDSQL, clientID); err != nil {
		if isNotFound(err) {
			return challenge.Challenge{}, false, nil
		}
		return challenge.Challenge{}, false, fmt.Errorf("get challenge by client id: %w", err)
	}
	return challengeFromRow(row), true, nil
}

const setChallengeStakeSQL = `
UPDATE challenges SET stake_points = $1, updated_at = $2 WHERE id = $3`

func (r *ChallengeRepository) SetStake(ctx context.Context, id string, stake int64, at time.Time) error {
	q := resolveQueryer(ctx, r.db)

	if _, err := q.ExecContext(ctx, setChallengeStakeSQL, stake, at, id); err != nil {
		return fmt.Errorf("set challenge stake: %w", err)
	}
	return nil
}

const setChallengeStatusSQL = `
UPDATE challenges SET status = $1, updated_at = $2 WHERE id = $3`

func (r *ChallengeRepository) SetStatus(ctx context.Context, id string, status challenge.Status, at time.Time) error {
	q := resolveQueryer(ctx, r.db)

	if _, err := q.ExecContext(ctx, setChallengeStatusSQL, string(status), at, id); err != nil {
		return fmt.Errorf("set challenge status: %w", err)
	}
	return nil
}

// List filters challenges on the side attributes (league, team) joined back
// to the challenge rows.
func (r *ChallengeRepository) List(ctx context.Context, filter challenge.Filter) ([]challenge.Challenge, error) {
	q := resolveQueryer(ctx, r.db)

	var (
		clauses []string
		args    []any
	)
	addClause := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.Replace(expr, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	query := `SELECT DISTINCT c.id, c.client_id, c.season, c.week, c.scoring_profile_id, c.status, c.stake_points, c.created_at, c.updated_at
FROM challenges c
LEFT JOIN challenge_sides s ON s.challenge_id = c.id`
	if filter.Season > 0 {
		addClause("c.season = ?", filter.Season)
	}
	if filter.LeagueID != "" {
		addClause("s.league_id = ?", filter.LeagueID)
	}
	if filter.TeamID != "" {
		addClause("s.team_id = ?", filter.TeamID)
	}
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit)
	query += "\nORDER BY c.created_at DESC\nLIMIT $" + strconv.Itoa(len(args))

	var rows []challengeTableModel
	if err := q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}

	out := make([]challenge.Challenge, 0, len(rows))
	for _, row := range rows {
		out = append(out, challengeFromRow(row))
	}
	return out, nil
}

const sideColumns = `challenge_id, side, platform_code, season, league_id, team_id, team_name, owner_member_id, lineup, bench, locked_at, points_final`

func (r *ChallengeRepository) GetSide(ctx context.Context, challengeID string, side int) (challenge.Side, bool, error) {
	return r.getSide(ctx, challengeID, side, false)
}

func (r *ChallengeRepository) GetSideForUpdate(ctx context.Context, challengeID string, side int) (challenge.Side, bool, error) {
	return r.getSide(ctx, challengeID, side, true)
}

func (r *ChallengeRepository) getSide(ctx context.Context, challengeID string, sideNo int, forUpdate bool) (challenge.Side, bool, error) {
	q := resolveQueryer(ctx, r.db)

	query := `SELECT ` + sideColumns + ` FROM challenge_sides WHERE challenge_id = $1 AND side = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row challengeSideTableModel
	if err := q.GetContext(ctx, &row, query, challengeID, sideNo); err != nil {
		if isNotFound(err) {
			return challenge.Side{}, false, nil
		}
		return challenge.Side{}, false, fmt.Errorf("get challenge side: %w", err)
	}

	side, err := sideFromRow(row)
	if err != nil {
		return challenge.Side{}, false, err
	}
	return side, true, nil
}

const listSidesSQL = `
SELECT ` + sideColumns + ` FROM challenge_sides WHERE challenge_id = $1 ORDER BY side`

func (r *ChallengeRepository) ListSides(ctx context.Context, challengeID string) ([]challenge.Side, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []challengeSideTableModel
	if err := q.SelectContext(ctx, &rows, listSidesSQL, challengeID); err != nil {
		return nil, fmt.Errorf("list challenge sides: %w", err)
	}

	out := make([]challenge.Side, 0, len(rows))
	for _, row := range rows {
		side, err := sideFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, side)
	}
	return out, nil
}

const upsertSideSQL = `
INSERT INTO challenge_sides (challenge_id, side, platform_code, season, league_id, team_id, team_name, owner_member_id, lineup, bench, locked_at, points_final)
VALUES (:challenge_id, :side, :platform_code, :season, :league_id, :team_id, :team_name, :owner_member_id, :lineup, :bench, :locked_at, :points_final)
ON CONFLICT (challenge_id, side)
DO UPDATE SET
    platform_code = EXCLUDED.platform_code,
    season = EXCLUDED.season,
    league_id = EXCLUDED.league_id,
    team_id = EXCLUDED.team_id,
    team_name = EXCLUDED.team_name,
    owner_member_id = EXCLUDED.owner_member_id,
    lineup = EXCLUDED.lineup,
    bench = EXCLUDED.bench,
    locked_at = EXCLUDED.locked_at,
    points_final = EXCLUDED.points_final`

func (r *ChallengeRepository) UpsertSide(ctx context.Context, s challenge.Side) error {
	q := resolveQueryer(ctx, r.db)

	row, err := sideToRow(s)
	if err != nil {
		return err
	}
	if _, err := sqlx.NamedExecContext(ctx, q, upsertSideSQL, row); err != nil {
		return fmt.Errorf("upsert challenge side: %w", err)
	}
	return nil
}

const setSidePointsSQL = `
UPDATE challenge_sides SET points_final = $1 WHERE challenge_id = $2 AND side = $3`

func (r *ChallengeRepository) SetSidePoints(ctx context.Context, challengeID string, side int, points float64) error {
	q := resolveQueryer(ctx, r.db)

	if _, err := q.ExecContext(ctx, setSidePointsSQL, points, challengeID, side); err != nil {
		return fmt.Errorf("set side points: %w", err)
	}
	return nil
}

const appendEventSQL = `
INSERT INTO challenge_events (challenge_id, actor_member_id, type, data, created_at)
VALUES (:challenge_id, :actor_member_id, :type, :data, :created_at)`

func (r *ChallengeRepository) AppendEvent(ctx context.Context, e challenge.Event) error {
	q := resolveQueryer(ctx, r.db)

	row := challengeEventTableModel{
		ChallengeID:   e.ChallengeID,
		ActorMemberID: e.ActorMemberID,
		Type:          string(e.Type),
		Data:          e.Data,
		CreatedAt:     e.CreatedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, q, appendEventSQL, row); err != nil {
		return fmt.Errorf("append challenge event: %w", err)
	}
	return nil
}

const listEventsSQL = `
SELECT id, challenge_id, actor_member_id, type, data, created_at
FROM challenge_events
WHERE challenge_id = $1
ORDER BY id`

func (r *ChallengeRepository) ListEvents(ctx context.Context, challengeID string) ([]challenge.Event, error) {
	q := resolveQueryer(ctx, r.db)

	var rows []challengeEventTableModel
	if err := q.SelectContext(ctx, &rows, listEventsSQL, challengeID); err != nil {
		return nil, fmt.Errorf("list challenge events: %w", err)
	}

	out := make([]challenge.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, challenge.Event{
			ID:            row.ID,
			ChallengeID:   row.ChallengeID,
			ActorMemberID: row.ActorMemberID,
			Type:          challenge.EventType(row.Type),
			Data:          row.Data,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}
