package espn

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/fortifiedfantasy/duels/internal/platform/logging"
	"github.com/fortifiedfantasy/duels/internal/platform/resilience"
	"github.com/fortifiedfantasy/duels/internal/usecase"
)

const (
	defaultBaseURL = "https://lm-api-reads.fantasy.espn.com/apis/v3/games/ffl"
	boxscoreView   = "mBoxscore"
)

var errESPNTransient = crerr.New("espn transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client reads league boxscores from the upstream fantasy feed. The client
// is stateless: every call is a pure function of its inputs and the feed.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		maxRetries:     max(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchLeagueWeek pulls the boxscore view for one scoring period and
// returns every team's scored roster. Concurrent calls for the same
// (league, season, week) collapse into one upstream request.
func (c *Client) FetchLeagueWeek(ctx context.Context, cred usecase.UpstreamCredential, season int, leagueID string, week int) ([]usecase.TeamRoster, error) {
	leagueID = strings.TrimSpace(leagueID)
	if leagueID == "" {
		return nil, fmt.Errorf("league id is required")
	}
	if season <= 0 || week <= 0 {
		return nil, fmt.Errorf("season and week must be positive")
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "espn circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: scoring feed is temporarily unavailable", usecase.ErrUpstream)
		}
	}

	fullURL := fmt.Sprintf("%s/seasons/%d/segments/0/leagues/%s?view=%s&scoringPeriodId=%d",
		c.baseURL, season, leagueID, boxscoreView, week)

	key := fmt.Sprintf("%s|%d|%d", leagueID, season, week)
	out, err, _ := c.flight.Do(key, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL, cred)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errESPNTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, classifyError(err)
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}

	var view boxscoreEnvelope
	if err := sonic.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decode boxscore payload: %w", err)
	}

	return collectRosters(view, week), nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string, cred usecase.UpstreamCredential) ([]byte, error) {
	cookie := buildCookie(cred)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		if cookie != "" {
			req.Header.Set("cookie", cookie)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				lastErr = fmt.Errorf("%w: %v", usecase.ErrUpstreamTimeout, err)
			} else {
				lastErr = fmt.Errorf("%w: send request: %v", errESPNTransient, err)
			}
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errESPNTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: feed status=%d", errESPNTransient, resp.StatusCode)
			default:
				return nil, fmt.Errorf("%w: feed status=%d", usecase.ErrUpstream, resp.StatusCode)
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: feed request failed", errESPNTransient)
	}
	c.logger.WarnContext(ctx, "espn request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

// classifyError folds transport-level failures into the retryable upstream
// taxonomy the caller understands.
func classifyError(err error) error {
	switch {
	case stderrors.Is(err, usecase.ErrUpstream), stderrors.Is(err, usecase.ErrUpstreamTimeout):
		return err
	case stderrors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return fmt.Errorf("%w: %v", usecase.ErrUpstreamTimeout, err)
	case crerr.Is(err, errESPNTransient):
		return fmt.Errorf("%w: %v", usecase.ErrUpstream, err)
	default:
		return err
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func buildCookie(cred usecase.UpstreamCredential) string {
	swid := strings.TrimSpace(cred.SWID)
	s2 := strings.TrimSpace(cred.ESPNS2)
	if swid == "" && s2 == "" {
		return ""
	}
	parts := make([]string, 0, 2)
	if swid != "" {
		parts = append(parts, "SWID="+swid)
	}
	if s2 != "" {
		parts = append(parts, "espn_s2="+s2)
	}
	return strings.Join(parts, "; ")
}

// boxscoreEnvelope mirrors the slice of the feed view we consume:
// schedule[].{home,away}.rosterForCurrentScoringPeriod.entries[].
type boxscoreEnvelope struct {
	Schedule []scheduleItem `json:"schedule"`
}

type scheduleItem struct {
	Home *matchupTeam `json:"home"`
	Away *matchupTeam `json:"away"`
}

type matchupTeam struct {
	TeamID int64       `json:"teamId"`
	Roster *rosterView `json:"rosterForCurrentScoringPeriod"`
}

type rosterView struct {
	Entries []rosterEntryView `json:"entries"`
}

type rosterEntryView struct {
	PlayerID        int64            `json:"playerId"`
	LineupSlotID    int              `json:"lineupSlotId"`
	PlayerPoolEntry *playerPoolEntry `json:"playerPoolEntry"`
}

type playerPoolEntry struct {
	ID               int64              `json:"id"`
	AppliedStatTotal *float64           `json:"appliedStatTotal"`
	AppliedStats     map[string]float64 `json:"appliedStats"`
	Player           *playerView        `json:"player"`
}

type playerView struct {
	ProTeamID int `json:"proTeamId"`
}

func collectRosters(view boxscoreEnvelope, week int) []usecase.TeamRoster {
	seen := make(map[int64]bool)
	out := make([]usecase.TeamRoster, 0, len(view.Schedule)*2)

	for _, matchup := range view.Schedule {
		for _, team := range []*matchupTeam{matchup.Home, matchup.Away} {
			if team == nil || team.Roster == nil || seen[team.TeamID] {
				continue
			}
			seen[team.TeamID] = true
			out = append(out, usecase.TeamRoster{
				TeamID:     strconv.FormatInt(team.TeamID, 10),
				TeamAbbrev: teamAbbrevFromRoster(team.Roster.Entries),
				Entries:    mapEntries(team.Roster.Entries, week),
			})
		}
	}
	return out
}

func mapEntries(entries []rosterEntryView, week int) []usecase.RosterEntry {
	weekKey := strconv.Itoa(week)
	out := make([]usecase.RosterEntry, 0, len(entries))
	for _, entry := range entries {
		mapped := usecase.RosterEntry{
			PlayerID:     entry.PlayerID,
			LineupSlotID: entry.LineupSlotID,
		}
		if pool := entry.PlayerPoolEntry; pool != nil {
			if mapped.PlayerID == 0 {
				mapped.PlayerID = pool.ID
			}
			// The per-entry total takes precedence; the per-period map is
			// the fallback for views that omit it.
			if pool.AppliedStatTotal != nil {
				mapped.AppliedTotal = *pool.AppliedStatTotal
			} else if v, ok := pool.AppliedStats[weekKey]; ok {
				mapped.AppliedTotal = v
			}
		}
		out = append(out, mapped)
	}
	return out
}

func teamAbbrevFromRoster(entries []rosterEntryView) string {
	for _, entry := range entries {
		if entry.LineupSlotID != 16 {
			continue
		}
		if entry.PlayerPoolEntry != nil && entry.PlayerPoolEntry.Player != nil {
			return NormalizeTeamAbbrev(ProTeamAbbrev(entry.PlayerPoolEntry.Player.ProTeamID))
		}
	}
	return ""
}
