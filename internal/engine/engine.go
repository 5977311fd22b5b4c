package engine

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/engine/buffer"
	"github.com/Coldaine/ShortcutSage/internal/engine/features"
	"github.com/Coldaine/ShortcutSage/internal/engine/matcher"
	"github.com/Coldaine/ShortcutSage/internal/engine/policy"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

// Config controls the engine.
type Config struct {
	Window          time.Duration    // event buffer span (default 3s)
	TopN            int              // suggestions per event (default 3)
	Personalization bool             // acceptance-based priority adjustment
	Clock           func() time.Time // default time.Now
}

// DefaultConfig returns the settings the daemon ships with.
func DefaultConfig() Config {
	return Config{
		Window:          3 * time.Second,
		TopN:            policy.DefaultTopN,
		Personalization: true,
	}
}

// Engine runs buffer → features → matcher → policy for one event at a time.
// A single mutex covers every stage and the rule/shortcut tables, so a
// reload is never observed halfway through processing an event.
type Engine struct {
	mu        sync.Mutex
	buffer    *buffer.Buffer
	rules     []model.Rule
	shortcuts map[string]model.Shortcut
	policy    *policy.Policy
	topN      int
	now       func() time.Time
}

// Stats is a point-in-time view of engine sizes.
type Stats struct {
	Rules     int `json:"rules"`
	Shortcuts int `json:"shortcuts"`
	Buffered  int `json:"buffered"`
}

// New creates an Engine. Invalid tables or a non-positive window are
// rejected with model.ErrInvalidConfiguration.
func New(rules []model.Rule, shortcuts map[string]model.Shortcut, cfg Config) (*Engine, error) {
	if err := model.ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("engine rules: %w", err)
	}
	if err := model.ValidateShortcuts(shortcuts); err != nil {
		return nil, fmt.Errorf("engine shortcuts: %w", err)
	}
	buf, err := buffer.New(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("engine buffer: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	table := maps.Clone(shortcuts)
	if table == nil {
		table = make(map[string]model.Shortcut)
	}

	return &Engine{
		buffer:    buf,
		rules:     slices.Clone(rules),
		shortcuts: table,
		policy: policy.New(table,
			policy.WithPersonalization(cfg.Personalization),
			policy.WithClock(now)),
		topN: cfg.TopN,
		now:  now,
	}, nil
}

// SubmitEvent ingests one event and returns the ranked suggestions for it,
// possibly none.
func (e *Engine) SubmitEvent(ev model.Event) []model.SuggestionResult {
	ev.Action = model.CanonicalAction(ev.Action)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer.Add(ev)
	f := features.Extract(e.buffer)
	pairs := matcher.Match(e.rules, f)
	return e.policy.Apply(pairs, e.now(), e.topN)
}

// SubmitAcceptance records that the user took action after ruleName suggested it.
func (e *Engine) SubmitAcceptance(action, ruleName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy.MarkAccepted(model.CanonicalAction(action), ruleName)
}

// ReplaceRules swaps the active rule list. On error the old list stays.
func (e *Engine) ReplaceRules(rules []model.Rule) error {
	if err := model.ValidateRules(rules); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	next := slices.Clone(rules)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = next
	return nil
}

// ReplaceShortcuts swaps the shortcut table. On error the old table stays.
func (e *Engine) ReplaceShortcuts(shortcuts map[string]model.Shortcut) error {
	if err := model.ValidateShortcuts(shortcuts); err != nil {
		return fmt.Errorf("replace shortcuts: %w", err)
	}
	next := maps.Clone(shortcuts)
	if next == nil {
		next = make(map[string]model.Shortcut)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.shortcuts = next
	e.policy.ReplaceShortcuts(next)
	return nil
}

// ReplaceTables validates both tables and swaps them together. On error
// neither table changes.
func (e *Engine) ReplaceTables(rules []model.Rule, shortcuts map[string]model.Shortcut) error {
	if err := model.ValidateRules(rules); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	if err := model.ValidateShortcuts(shortcuts); err != nil {
		return fmt.Errorf("replace shortcuts: %w", err)
	}
	nextRules := slices.Clone(rules)
	nextShortcuts := maps.Clone(shortcuts)
	if nextShortcuts == nil {
		nextShortcuts = make(map[string]model.Shortcut)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nextRules
	e.shortcuts = nextShortcuts
	e.policy.ReplaceShortcuts(nextShortcuts)
	return nil
}

// Snapshot returns the buffered events, oldest first.
func (e *Engine) Snapshot() []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Recent()
}

// AcceptanceCount returns the global acceptance counter for action.
func (e *Engine) AcceptanceCount(action string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.AcceptanceCount(model.CanonicalAction(action))
}

// Personalization returns the record for (ruleName, action), if any.
func (e *Engine) Personalization(ruleName, action string) (policy.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Record(ruleName, model.CanonicalAction(action))
}

// ClearCooldowns resets every cooldown timer.
func (e *Engine) ClearCooldowns() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy.ClearCooldowns()
}

// ClearBuffer drops all buffered events.
func (e *Engine) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer.Clear()
}

// Stats reports table and buffer sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Rules:     len(e.rules),
		Shortcuts: len(e.shortcuts),
		Buffered:  e.buffer.Len(),
	}
}
