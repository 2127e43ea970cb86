package challenge

import "time"

type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusLocked  Status = "locked"
	StatusScored  Status = "scored"
	StatusClosed  Status = "closed"
	StatusVoided  Status = "voided"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusVoided
}

type EventType string

const (
	EventCreate    EventType = "create"
	EventClaim     EventType = "claim"
	EventClaimLock EventType = "claim_lock"
	EventLock      EventType = "lock"
	EventScore     EventType = "score"
	EventSettle    EventType = "settle"
	EventVoid      EventType = "void"
)

// Upstream lineup slot ids that do not count toward starter totals.
const (
	SlotBench = 20
	SlotIR    = 21
)

// Slot is one roster position in a side's lineup or bench. Pts carries the
// client-reported score when the client pre-scores the lineup.
type Slot struct {
	PlayerID string   `json:"playerId"`
	SlotID   int      `json:"slot"`
	Pts      *float64 `json:"pts,omitempty"`
}

// Starter reports whether the slot counts toward the starters total.
func (s Slot) Starter() bool {
	return s.SlotID != SlotBench && s.SlotID != SlotIR
}

// StartersPoints sums the client-reported pts over starter slots. Slots
// without a pts value contribute zero.
func StartersPoints(lineup []Slot) float64 {
	var total float64
	for _, slot := range lineup {
		if !slot.Starter() || slot.Pts == nil {
			continue
		}
		total += *slot.Pts
	}
	return total
}

// Challenge is a two-sided matchup for a fixed stake within one scoring week.
type Challenge struct {
	ID               string
	ClientID         string
	Season           int
	Week             int
	ScoringProfileID string
	Status           Status
	StakePoints      int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Side is one participant row. Exactly two exist per challenge, keyed by
// (challenge_id, side) with side in {1, 2}.
type Side struct {
	ChallengeID   string
	Side          int
	PlatformCode  string
	Season        int
	LeagueID      string
	TeamID        string
	TeamName      string
	OwnerMemberID string
	Lineup        []Slot
	Bench         []Slot
	LockedAt      *time.Time
	PointsFinal   *float64
}

// Locked reports whether the side has committed a lineup.
func (s Side) Locked() bool {
	return s.LockedAt != nil
}

// Event is one append-only audit record for a challenge mutation.
type Event struct {
	ID            int64
	ChallengeID   string
	ActorMemberID string
	Type          EventType
	Data          []byte
	CreatedAt     time.Time
}

// Filter narrows challenge listings.
type Filter struct {
	Season   int
	LeagueID string
	TeamID   string
	Limit    int
}
