package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rake is the house fraction of a decisive pot, kept as an exact rational so
// payout + rake == pot with no rounding drift. Valid range is [0, 1/2].
type Rake struct {
	Num int64
	Den int64
}

// ParseRake accepts "n/d" rationals or decimal strings ("0.045"). Decimals
// are normalized to a denominator of at most 1000.
func ParseRake(raw string) (Rake, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Rake{}, fmt.Errorf("rake rate is empty")
	}

	var r Rake
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Rake{}, fmt.Errorf("parse rake numerator %q: %w", num, err)
		}
		d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
		if err != nil {
			return Rake{}, fmt.Errorf("parse rake denominator %q: %w", den, err)
		}
		r = Rake{Num: n, Den: d}
	} else {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Rake{}, fmt.Errorf("parse rake rate %q: %w", raw, err)
		}
		r = Rake{Num: int64(math.Round(f * 1000)), Den: 1000}
	}

	if r.Den <= 0 {
		return Rake{}, fmt.Errorf("rake denominator must be > 0")
	}
	if r.Num < 0 || r.Num*2 > r.Den {
		return Rake{}, fmt.Errorf("rake rate must be within [0, 0.5]")
	}
	return r, nil
}

// Split divides a pot into (payout, rake). payout = ⌊pot·(1−rate)⌋ and the
// remainder goes to the house, so the two always sum to the pot exactly.
func (r Rake) Split(pot int64) (payout, rake int64) {
	if pot <= 0 {
		return 0, 0
	}
	if r.Den == 0 {
		return pot, 0
	}
	payout = pot * (r.Den - r.Num) / r.Den
	return payout, pot - payout
}

// Zero reports whether no rake is taken.
func (r Rake) Zero() bool {
	return r.Num == 0
}
