/*
Package policy turns matched suggestions into the ranked list shown to the
user.

Candidates pass a per-(rule, action) cooldown, get their priority adjusted
from the observed acceptance rate, are stably sorted by priority and cut to
the top N before being resolved against the shortcut table.
*/
package policy

import (
	"sort"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/engine/matcher"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

// DefaultTopN is the number of suggestions returned when the host does not
// configure one.
const DefaultTopN = 3

// Option configures a Policy.
type Option func(*Policy)

// WithPersonalization toggles acceptance-based priority adjustment.
// Default: enabled.
func WithPersonalization(enabled bool) Option {
	return func(p *Policy) { p.personalize = enabled }
}

// WithClock sets the clock used to timestamp acceptances. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// Policy holds cooldown and personalization state. Both are keyed by
// "{rule}:{action}", so they survive replacing the rule list as long as rule
// names are unchanged. Policy is not safe for concurrent use; the engine
// serializes access.
type Policy struct {
	shortcuts   map[string]model.Shortcut
	personalize bool
	now         func() time.Time

	cooldowns map[string]time.Time
	records   map[string]*Record
	accepted  map[string]int
}

// New creates a Policy resolving actions through shortcuts.
func New(shortcuts map[string]model.Shortcut, opts ...Option) *Policy {
	p := &Policy{
		shortcuts:   shortcuts,
		personalize: true,
		now:         time.Now,
		cooldowns:   make(map[string]time.Time),
		records:     make(map[string]*Record),
		accepted:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ranked carries a candidate together with the priority it is sorted by,
// leaving the rule's declared Suggestion untouched.
type ranked struct {
	pair     matcher.Pair
	priority int
}

// Apply filters pairs by cooldown, adjusts and ranks them, and resolves the
// first topN against the shortcut table. Unresolvable actions are dropped
// without replacement, so fewer than topN results may come back.
func (p *Policy) Apply(pairs []matcher.Pair, now time.Time, topN int) []model.SuggestionResult {
	admitted := make([]ranked, 0, len(pairs))
	for _, m := range pairs {
		key := model.Key(m.Rule.Name, m.Suggestion.Action)
		if last, ok := p.cooldowns[key]; ok && now.Sub(last) < m.Rule.CooldownDuration() {
			continue
		}
		// The timer starts even if the action later fails to resolve.
		p.cooldowns[key] = now
		admitted = append(admitted, ranked{pair: m, priority: m.Suggestion.Priority})
	}

	if p.personalize {
		for i := range admitted {
			c := &admitted[i]
			key := model.Key(c.pair.Rule.Name, c.pair.Suggestion.Action)
			c.priority = p.observe(key, c.priority, now)
		}
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		return admitted[i].priority > admitted[j].priority
	})

	if topN < 0 {
		topN = 0
	}
	if len(admitted) > topN {
		admitted = admitted[:topN]
	}

	results := make([]model.SuggestionResult, 0, len(admitted))
	for _, c := range admitted {
		sc, ok := p.shortcuts[c.pair.Suggestion.Action]
		if !ok {
			continue
		}
		results = append(results, model.SuggestionResult{
			Action:           c.pair.Suggestion.Action,
			Key:              sc.Key,
			Description:      sc.Description,
			Priority:         c.priority,
			AdjustedPriority: c.priority,
			Rule:             c.pair.Rule.Name,
		})
	}
	return results
}

// observe counts an offer for key and returns the adjusted priority.
func (p *Policy) observe(key string, priority int, now time.Time) int {
	rec := p.record(key)
	rec.SuggestionCount++
	rec.LastSuggested = now
	if rec.SuggestionCount < minObservations {
		return priority
	}
	return Adjust(priority, *rec, now)
}

func (p *Policy) record(key string) *Record {
	rec, ok := p.records[key]
	if !ok {
		rec = &Record{}
		p.records[key] = rec
	}
	return rec
}

// MarkAccepted records that the user took a suggested action.
func (p *Policy) MarkAccepted(action, ruleName string) {
	p.accepted[action]++
	if !p.personalize {
		return
	}
	rec := p.record(model.Key(ruleName, action))
	rec.AcceptanceCount++
	rec.LastAccepted = p.now()
}

// AcceptanceCount returns how often action was accepted, across all rules.
func (p *Policy) AcceptanceCount(action string) int {
	return p.accepted[action]
}

// Record returns a copy of the personalization record for (ruleName, action).
func (p *Policy) Record(ruleName, action string) (Record, bool) {
	rec, ok := p.records[model.Key(ruleName, action)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ClearCooldowns forgets every cooldown timer. Personalization is kept.
func (p *Policy) ClearCooldowns() {
	clear(p.cooldowns)
}

// ReplaceShortcuts swaps the table used to resolve actions.
func (p *Policy) ReplaceShortcuts(shortcuts map[string]model.Shortcut) {
	p.shortcuts = shortcuts
}
