package espn

// Upstream codebook: closed enumerations published with the fantasy feed.
// Kept as data tables; the ids are stable across seasons.

// Lineup slot ids. Starters are everything that is not bench or IR.
const (
	SlotBench = 20
	SlotIR    = 21
)

var lineupSlotNames = map[int]string{
	0:  "QB",
	2:  "RB",
	3:  "RB/WR",
	4:  "WR",
	5:  "WR/TE",
	6:  "TE",
	7:  "OP",
	16: "D/ST",
	17: "K",
	20: "BE",
	21: "IR",
	23: "FLEX",
}

// LineupSlotName resolves a slot id to its display code.
func LineupSlotName(slotID int) string {
	if name, ok := lineupSlotNames[slotID]; ok {
		return name
	}
	return "UNK"
}

// IsStarterSlot reports whether a slot counts toward the starters total.
func IsStarterSlot(slotID int) bool {
	return slotID != SlotBench && slotID != SlotIR
}

var positionNames = map[int]string{
	1: "QB",
	2: "RB",
	3: "WR",
	4: "TE",
	5: "K",
	7: "P",
	9: "DT",
	16: "D/ST",
}

// PositionName resolves a default position id to its display code.
func PositionName(positionID int) string {
	if name, ok := positionNames[positionID]; ok {
		return name
	}
	return "UNK"
}

var proTeamAbbrevs = map[int]string{
	0:  "FA",
	1:  "ATL",
	2:  "BUF",
	3:  "CHI",
	4:  "CIN",
	5:  "CLE",
	6:  "DAL",
	7:  "DEN",
	8:  "DET",
	9:  "GB",
	10: "TEN",
	11: "IND",
	12: "KC",
	13: "LV",
	14: "LAR",
	15: "MIA",
	16: "MIN",
	17: "NE",
	18: "NO",
	19: "NYG",
	20: "NYJ",
	21: "PHI",
	22: "ARI",
	23: "PIT",
	24: "LAC",
	25: "SF",
	26: "SEA",
	27: "TB",
	28: "WSH",
	29: "CAR",
	30: "JAX",
	33: "BAL",
	34: "HOU",
}

// ProTeamAbbrev resolves an NFL team id to its abbreviation.
func ProTeamAbbrev(teamID int) string {
	if abbr, ok := proTeamAbbrevs[teamID]; ok {
		return abbr
	}
	return ""
}

// Legacy and relocated team codes seen in older feeds.
var teamAbbrevNorm = map[string]string{
	"JAC": "JAX",
	"WAS": "WSH",
	"OAK": "LV",
	"SD":  "LAC",
	"STL": "LAR",
	"LA":  "LAR",
}

// NormalizeTeamAbbrev maps legacy team codes onto the current ones.
func NormalizeTeamAbbrev(abbrev string) string {
	if norm, ok := teamAbbrevNorm[abbrev]; ok {
		return norm
	}
	return abbrev
}
