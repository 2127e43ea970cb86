package usecase

import (
	"context"

	"github.com/fortifiedfantasy/duels/internal/domain/challenge"
)

// UpstreamCredential is the opaque cookie pair the fantasy feed expects for
// private leagues.
type UpstreamCredential struct {
	SWID   string
	ESPNS2 string
}

// RosterEntry is one roster row with its applied total for the requested
// scoring period.
type RosterEntry struct {
	PlayerID     int64
	LineupSlotID int
	AppliedTotal float64
}

// TeamRoster is the scored roster of one team in a league week.
type TeamRoster struct {
	TeamID     string
	TeamAbbrev string
	Entries    []RosterEntry
}

// ScoreFetcher pulls applied per-player totals for a (season, league, week)
// from the upstream fantasy feed. Implementations are stateless.
type ScoreFetcher interface {
	FetchLeagueWeek(ctx context.Context, cred UpstreamCredential, season int, leagueID string, week int) ([]TeamRoster, error)
}

// CredentialSource resolves the upstream credential for a league.
type CredentialSource interface {
	LeagueCredential(ctx context.Context, leagueID string) (UpstreamCredential, error)
}

// StaticCredential serves one shared credential for every league.
type StaticCredential struct {
	Cred UpstreamCredential
}

func (s StaticCredential) LeagueCredential(_ context.Context, _ string) (UpstreamCredential, error) {
	return s.Cred, nil
}

// StartersTotal sums applied totals over starter slots (everything except
// bench and injured reserve).
func StartersTotal(entries []RosterEntry) float64 {
	var total float64
	for _, e := range entries {
		if e.LineupSlotID == challenge.SlotBench || e.LineupSlotID == challenge.SlotIR {
			continue
		}
		total += e.AppliedTotal
	}
	return total
}
