package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Coldaine/ShortcutSage/internal/model"
)

// Well-known file names inside the config directory.
const (
	ShortcutsFile = "shortcuts.yaml"
	RulesFile     = "rules.yaml"
	SettingsFile  = "sage.yaml"
)

// SchemaVersion is the only accepted value of a table file's version key.
const SchemaVersion = "1.0"

// Bounds and defaults applied while loading rules.
const (
	DefaultCooldown = 300
	MaxCooldown     = 3600
	DefaultWindow   = 3
	MinWindow       = 1
	MaxWindow       = 10
	DefaultPriority = 50
	DefaultCategory = "general"
)

// Error reports a problem with one configuration file.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Loader reads the shortcut and rule tables from a directory.
type Loader struct {
	dir string
}

// NewLoader returns a Loader for dir, which must be an existing directory.
func NewLoader(dir string) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config dir %s: not a directory", dir)
	}
	return &Loader{dir: dir}, nil
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string { return l.dir }

// Path returns the full path of a file in the config directory.
func (l *Loader) Path(name string) string { return filepath.Join(l.dir, name) }

// LoadShortcuts reads and validates shortcuts.yaml.
func (l *Loader) LoadShortcuts() (map[string]model.Shortcut, error) {
	data, err := l.read(ShortcutsFile)
	if err != nil {
		return nil, err
	}
	return ParseShortcuts(data)
}

// LoadRules reads and validates rules.yaml.
func (l *Loader) LoadRules() ([]model.Rule, error) {
	data, err := l.read(RulesFile)
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}

// Load reads both tables. Nothing is returned unless both are valid.
func (l *Loader) Load() (map[string]model.Shortcut, []model.Rule, error) {
	shortcuts, err := l.LoadShortcuts()
	if err != nil {
		return nil, nil, err
	}
	rules, err := l.LoadRules()
	if err != nil {
		return nil, nil, err
	}
	return shortcuts, rules, nil
}

func (l *Loader) read(name string) ([]byte, error) {
	data, err := os.ReadFile(l.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{File: name, Err: errors.New("file not found")}
		}
		return nil, &Error{File: name, Err: err}
	}
	return data, nil
}

type shortcutsDoc struct {
	Version   string          `yaml:"version"`
	Shortcuts []shortcutEntry `yaml:"shortcuts"`
}

type shortcutEntry struct {
	Key         string  `yaml:"key"`
	Action      string  `yaml:"action"`
	Description *string `yaml:"description"`
	Category    *string `yaml:"category"`
}

type rulesDoc struct {
	Version string      `yaml:"version"`
	Rules   []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Name     string            `yaml:"name"`
	Context  contextEntry      `yaml:"context"`
	Suggest  []suggestionEntry `yaml:"suggest"`
	Cooldown *int              `yaml:"cooldown"`
}

type contextEntry struct {
	Type    string      `yaml:"type"`
	Pattern patternList `yaml:"pattern"`
	Window  *int        `yaml:"window"`
}

type suggestionEntry struct {
	Action   string `yaml:"action"`
	Priority *int   `yaml:"priority"`
}

// patternList accepts either a single string or a list of strings.
type patternList []string

func (p *patternList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*p = patternList{n.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err != nil {
			return err
		}
		*p = items
		return nil
	}
	return fmt.Errorf("line %d: pattern must be a string or a list of strings", n.Line)
}

// decode unmarshals a non-empty YAML document into out.
func decode(name string, data []byte, out any) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &Error{File: name, Err: fmt.Errorf("invalid YAML: %w", err)}
	}
	if len(doc.Content) == 0 || doc.Content[0].Tag == "!!null" {
		return &Error{File: name, Err: errors.New("file is empty")}
	}
	if err := doc.Decode(out); err != nil {
		return &Error{File: name, Err: fmt.Errorf("invalid YAML: %w", err)}
	}
	return nil
}

func invalid(name string, errs []error) error {
	return &Error{
		File: name,
		Err:  fmt.Errorf("%w: %w", model.ErrInvalidConfiguration, errors.Join(errs...)),
	}
}

func checkVersion(v string) error {
	if v != "" && v != SchemaVersion {
		return fmt.Errorf("unsupported version %q, want %q", v, SchemaVersion)
	}
	return nil
}

// ParseShortcuts decodes and validates a shortcuts document. Actions are
// canonicalized; keys are trimmed; category defaults to "general".
func ParseShortcuts(data []byte) (map[string]model.Shortcut, error) {
	var doc shortcutsDoc
	if err := decode(ShortcutsFile, data, &doc); err != nil {
		return nil, err
	}

	var errs []error
	if err := checkVersion(doc.Version); err != nil {
		errs = append(errs, err)
	}
	if len(doc.Shortcuts) == 0 {
		errs = append(errs, errors.New("at least one shortcut is required"))
	}

	table := make(map[string]model.Shortcut, len(doc.Shortcuts))
	for i, e := range doc.Shortcuts {
		action := model.CanonicalAction(e.Action)
		key := strings.TrimSpace(e.Key)
		switch {
		case action == "":
			errs = append(errs, fmt.Errorf("shortcut %d: empty action", i))
			continue
		case !model.ValidAction(action):
			errs = append(errs, fmt.Errorf("shortcut %q: action must be alphanumeric with underscores or hyphens", action))
			continue
		}
		if key == "" {
			errs = append(errs, fmt.Errorf("shortcut %q: empty key", action))
		}
		if e.Description == nil {
			errs = append(errs, fmt.Errorf("shortcut %q: missing description", action))
		}
		if _, dup := table[action]; dup {
			errs = append(errs, fmt.Errorf("shortcut %q: duplicate action", action))
			continue
		}

		sc := model.Shortcut{Key: key, Action: action, Category: DefaultCategory}
		if e.Description != nil {
			sc.Description = *e.Description
		}
		if e.Category != nil {
			sc.Category = *e.Category
		}
		table[action] = sc
	}

	if len(errs) > 0 {
		return nil, invalid(ShortcutsFile, errs)
	}
	if err := model.ValidateShortcuts(table); err != nil {
		return nil, &Error{File: ShortcutsFile, Err: err}
	}
	return table, nil
}

// ParseRules decodes and validates a rules document. Names and patterns are
// trimmed, patterns and suggested actions lowercased, and omitted cooldown,
// window and priority take their defaults.
func ParseRules(data []byte) ([]model.Rule, error) {
	var doc rulesDoc
	if err := decode(RulesFile, data, &doc); err != nil {
		return nil, err
	}

	var errs []error
	if err := checkVersion(doc.Version); err != nil {
		errs = append(errs, err)
	}
	if len(doc.Rules) == 0 {
		errs = append(errs, errors.New("at least one rule is required"))
	}

	rules := make([]model.Rule, 0, len(doc.Rules))
	seen := make(map[string]bool, len(doc.Rules))
	for i, e := range doc.Rules {
		r, ruleErrs := buildRule(i, e)
		errs = append(errs, ruleErrs...)
		if r.Name != "" {
			if seen[r.Name] {
				errs = append(errs, fmt.Errorf("rule %q: duplicate name", r.Name))
			}
			seen[r.Name] = true
		}
		rules = append(rules, r)
	}

	if len(errs) > 0 {
		return nil, invalid(RulesFile, errs)
	}
	if err := model.ValidateRules(rules); err != nil {
		return nil, &Error{File: RulesFile, Err: err}
	}
	return rules, nil
}

func buildRule(i int, e ruleEntry) (model.Rule, []error) {
	var errs []error
	r := model.Rule{
		Name:     strings.TrimSpace(e.Name),
		Cooldown: DefaultCooldown,
		Context: model.ContextMatch{
			Type:   model.ContextType(e.Context.Type),
			Window: DefaultWindow,
		},
	}
	label := r.Name
	if label == "" {
		label = fmt.Sprintf("#%d", i)
		errs = append(errs, fmt.Errorf("rule %s: empty name", label))
	}

	if !r.Context.Type.Valid() {
		errs = append(errs, fmt.Errorf("rule %s: context type %q: want event_sequence, recent_window or desktop_state", label, e.Context.Type))
	}
	for _, p := range e.Context.Pattern {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			r.Context.Pattern = append(r.Context.Pattern, p)
		}
	}
	if len(r.Context.Pattern) == 0 {
		errs = append(errs, fmt.Errorf("rule %s: pattern cannot be empty", label))
	}
	if e.Context.Window != nil {
		r.Context.Window = *e.Context.Window
		if r.Context.Window < MinWindow || r.Context.Window > MaxWindow {
			errs = append(errs, fmt.Errorf("rule %s: window %d out of range %d-%d", label, r.Context.Window, MinWindow, MaxWindow))
		}
	}
	if e.Cooldown != nil {
		r.Cooldown = *e.Cooldown
		if r.Cooldown < 0 || r.Cooldown > MaxCooldown {
			errs = append(errs, fmt.Errorf("rule %s: cooldown %d out of range 0-%d", label, r.Cooldown, MaxCooldown))
		}
	}

	if len(e.Suggest) == 0 {
		errs = append(errs, fmt.Errorf("rule %s: at least one suggestion is required", label))
	}
	for _, s := range e.Suggest {
		sg := model.Suggestion{Action: model.CanonicalAction(s.Action), Priority: DefaultPriority}
		if sg.Action == "" {
			errs = append(errs, fmt.Errorf("rule %s: suggestion with empty action", label))
		}
		if s.Priority != nil {
			sg.Priority = *s.Priority
			if sg.Priority < 0 || sg.Priority > 100 {
				errs = append(errs, fmt.Errorf("rule %s: priority %d for %q out of range 0-100", label, sg.Priority, sg.Action))
			}
		}
		r.Suggest = append(r.Suggest, sg)
	}
	return r, errs
}

// CrossCheck lists suggested actions that have no shortcut. Such
// suggestions load fine but are never shown.
func CrossCheck(shortcuts map[string]model.Shortcut, rules []model.Rule) []string {
	var warnings []string
	for _, r := range rules {
		for _, s := range r.Suggest {
			if _, ok := shortcuts[s.Action]; !ok {
				warnings = append(warnings, fmt.Sprintf("rule %q suggests %q, which has no shortcut", r.Name, s.Action))
			}
		}
	}
	return slices.Compact(warnings)
}
