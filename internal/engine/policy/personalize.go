package policy

import (
	"math"
	"time"
)

const (
	// minObservations is the offer count from which adjustment applies.
	minObservations = 5

	// CTR bands and their multipliers.
	highCTR       = 0.4
	midCTR        = 0.2
	boostFactor   = 1.15
	neutralFactor = 1.0
	penaltyFactor = 0.85

	// acceptGrace is how long an acceptance counts at full weight.
	acceptGrace = time.Hour

	// decayPeriod and decayBase give ~10% loss per week after the grace.
	decayPeriod = 7 * 24 * time.Hour
	decayBase   = 0.9
)

// Record is the personalization state for one (rule, action) key.
// Zero LastSuggested/LastAccepted mean never.
type Record struct {
	SuggestionCount int
	AcceptanceCount int
	LastSuggested   time.Time
	LastAccepted    time.Time
}

// CTR is the acceptance rate, or 0 before the first offer.
func (r Record) CTR() float64 {
	if r.SuggestionCount == 0 {
		return 0
	}
	return float64(r.AcceptanceCount) / float64(r.SuggestionCount)
}

// Adjust scales priority by the record's acceptance rate and the age of its
// last acceptance, clamped to 0..100.
func Adjust(priority int, rec Record, now time.Time) int {
	factor := ctrFactor(rec.CTR()) * timeFactor(rec.LastAccepted, now)
	return clampPriority(float64(priority)*factor, priority)
}

func ctrFactor(ctr float64) float64 {
	switch {
	case ctr > highCTR:
		return boostFactor
	case ctr > midCTR:
		return neutralFactor
	default:
		return penaltyFactor
	}
}

// timeFactor decays exponentially once acceptGrace has passed since the
// last acceptance.
func timeFactor(lastAccepted, now time.Time) float64 {
	if lastAccepted.IsZero() {
		return 1.0
	}
	decay := now.Sub(lastAccepted) - acceptGrace
	if decay < 0 {
		decay = 0
	}
	return math.Pow(decayBase, decay.Seconds()/decayPeriod.Seconds())
}

// clampPriority rounds half to even and clamps to 0..100. Non-finite input
// falls back to the unadjusted priority.
func clampPriority(v float64, fallback int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = float64(fallback)
	}
	v = math.RoundToEven(v)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}
