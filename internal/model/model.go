// Package model holds the data types shared by the suggestion engine and
// its hosts: events, shortcuts, rules and the results handed to subscribers.
package model

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidConfiguration is returned when a window size, rule list or
// shortcut table cannot be accepted.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// EventType tags the kind of desktop event. The set is small but open:
// transports may forward types not listed here.
type EventType string

const (
	EventWindowFocus    EventType = "window_focus"
	EventDesktopSwitch  EventType = "desktop_switch"
	EventOverviewToggle EventType = "overview_toggle"
	EventWindowMove     EventType = "window_move"
	EventTest           EventType = "test"
)

// Known reports whether t is one of the built-in event types.
func (t EventType) Known() bool {
	switch t {
	case EventWindowFocus, EventDesktopSwitch, EventOverviewToggle, EventWindowMove, EventTest:
		return true
	}
	return false
}

// Event is a symbolic desktop event. Events are values and are never
// modified after construction.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an Event with the action in canonical form.
func NewEvent(ts time.Time, typ EventType, action string, metadata map[string]string) Event {
	return Event{
		Timestamp: ts,
		Type:      typ,
		Action:    CanonicalAction(action),
		Metadata:  metadata,
	}
}

// CanonicalAction trims and lowercases an action identifier.
func CanonicalAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Shortcut binds an action to a key combination.
type Shortcut struct {
	Key         string `json:"key"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ContextType selects how a rule's context is matched.
type ContextType string

const (
	ContextEventSequence ContextType = "event_sequence"
	ContextRecentWindow  ContextType = "recent_window"
	ContextDesktopState  ContextType = "desktop_state"
)

// Valid reports whether c is a supported context type.
func (c ContextType) Valid() bool {
	switch c {
	case ContextEventSequence, ContextRecentWindow, ContextDesktopState:
		return true
	}
	return false
}

// ContextMatch is the condition under which a rule fires. Window is carried
// from the rule file but matching only looks at the event buffer's own span.
type ContextMatch struct {
	Type    ContextType `json:"type"`
	Pattern []string    `json:"pattern"`
	Window  int         `json:"window"`
}

// Suggestion is a rule-declared candidate action.
type Suggestion struct {
	Action   string `json:"action"`
	Priority int    `json:"priority"`
}

// Rule pairs a context with ranked suggestions and a cooldown in seconds.
type Rule struct {
	Name     string       `json:"name"`
	Context  ContextMatch `json:"context"`
	Suggest  []Suggestion `json:"suggest"`
	Cooldown int          `json:"cooldown"`
}

// CooldownDuration returns the rule's cooldown as a time.Duration.
func (r Rule) CooldownDuration() time.Duration {
	return time.Duration(r.Cooldown) * time.Second
}

// SuggestionResult is a ranked suggestion resolved against the shortcut table.
type SuggestionResult struct {
	Action           string `json:"action"`
	Key              string `json:"key"`
	Description      string `json:"description"`
	Priority         int    `json:"priority"`
	AdjustedPriority int    `json:"adjusted_priority"`
	Rule             string `json:"rule"`
}

// Key builds the "{rule}:{action}" key used for cooldown and personalization.
func Key(ruleName, action string) string {
	return ruleName + ":" + action
}
