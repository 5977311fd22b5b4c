package model

import (
	"errors"
	"fmt"
)

// ValidAction reports whether s is a canonical action identifier:
// non-empty, lowercase alphanumerics plus '_' and '-'.
func ValidAction(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// ValidateRules checks the structural invariants the engine relies on.
// Every problem is reported; the returned error wraps ErrInvalidConfiguration.
func ValidateRules(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty name", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Errorf("rule %q: duplicate name", r.Name))
		}
		seen[r.Name] = true

		if !r.Context.Type.Valid() {
			errs = append(errs, fmt.Errorf("rule %q: unknown context type %q", r.Name, r.Context.Type))
		}
		if len(r.Context.Pattern) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: empty pattern", r.Name))
		}
		for _, p := range r.Context.Pattern {
			if !ValidAction(p) {
				errs = append(errs, fmt.Errorf("rule %q: pattern %q is not a canonical action", r.Name, p))
			}
		}
		if r.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("rule %q: negative cooldown %d", r.Name, r.Cooldown))
		}
		if len(r.Suggest) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: no suggestions", r.Name))
		}
		for _, s := range r.Suggest {
			if !ValidAction(s.Action) {
				errs = append(errs, fmt.Errorf("rule %q: suggested action %q is not canonical", r.Name, s.Action))
			}
			if s.Priority < 0 || s.Priority > 100 {
				errs = append(errs, fmt.Errorf("rule %q: priority %d for %q out of range 0-100", r.Name, s.Priority, s.Action))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// ValidateShortcuts checks that every entry is keyed by its own canonical action.
func ValidateShortcuts(table map[string]Shortcut) error {
	var errs []error
	for action, sc := range table {
		if !ValidAction(action) {
			errs = append(errs, fmt.Errorf("shortcut %q: invalid action id", action))
		}
		if sc.Action != action {
			errs = append(errs, fmt.Errorf("shortcut %q: keyed under %q", sc.Action, action))
		}
		if sc.Key == "" {
			errs = append(errs, fmt.Errorf("shortcut %q: empty key", action))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}
