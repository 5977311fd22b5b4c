package matcher

import (
	"github.com/Coldaine/ShortcutSage/internal/engine/features"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

// Pair is a suggestion produced by a rule whose context matched.
type Pair struct {
	Rule       model.Rule
	Suggestion model.Suggestion
}

// Match returns one pair per suggestion of every matching rule, in rule
// order and then suggest order.
func Match(rules []model.Rule, f features.Features) []Pair {
	var matches []Pair
	for _, r := range rules {
		if !Matches(r.Context, f) {
			continue
		}
		for _, s := range r.Suggest {
			matches = append(matches, Pair{Rule: r, Suggestion: s})
		}
	}
	return matches
}

// Matches reports whether a context holds for the snapshot. All context
// types currently share the membership test; the switch keeps them apart so
// they can diverge without changing callers.
func Matches(c model.ContextMatch, f features.Features) bool {
	switch c.Type {
	case model.ContextEventSequence, model.ContextRecentWindow, model.ContextDesktopState:
		return anyRecent(c.Pattern, f)
	default:
		return false
	}
}

// anyRecent is true when at least one pattern appears among the recent actions.
func anyRecent(patterns []string, f features.Features) bool {
	if f.EventCount == 0 {
		return false
	}
	for _, p := range patterns {
		if f.HasAction(p) {
			return true
		}
	}
	return false
}
