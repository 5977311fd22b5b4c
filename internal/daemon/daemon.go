/*
Package daemon hosts the suggestion engine: it loads the shortcut and rule
tables, hot-reloads them when the files change, runs incoming events through
the engine, records telemetry and publishes each result to subscribers.
*/
package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Coldaine/ShortcutSage/internal/config"
	"github.com/Coldaine/ShortcutSage/internal/engine"
	"github.com/Coldaine/ShortcutSage/internal/model"
	"github.com/Coldaine/ShortcutSage/internal/telemetry"
	"github.com/Coldaine/ShortcutSage/internal/watcher"
)

// Options configures a Daemon.
type Options struct {
	Engine           engine.Config
	Debounce         time.Duration // watcher debounce; 0 uses the default
	SubscriberBuffer int
	Clock            func() time.Time
}

// Daemon wires the engine to its configuration, telemetry and subscribers.
type Daemon struct {
	engine  *engine.Engine
	loader  *config.Loader
	watcher *watcher.Watcher
	rec     *telemetry.Recorder
	hub     *hub
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

// New loads both tables from loader and builds the engine. rec may be nil,
// in which case an in-memory recorder is used.
func New(loader *config.Loader, rec *telemetry.Recorder, opts Options) (*Daemon, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Engine.Clock == nil {
		opts.Engine.Clock = opts.Clock
	}
	if rec == nil {
		rec = telemetry.New(nil, telemetry.Options{Clock: opts.Clock})
	}

	shortcuts, rules, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, w := range config.CrossCheck(shortcuts, rules) {
		slog.Warn("config check", "warning", w)
	}

	eng, err := engine.New(rules, shortcuts, opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	d := &Daemon{
		engine: eng,
		loader: loader,
		rec:    rec,
		hub:    newHub(opts.SubscriberBuffer),
		now:    opts.Clock,
	}
	d.watcher = watcher.New(loader.Dir(), opts.Debounce, d.onFileChange)

	slog.Info("daemon initialized",
		"config_dir", loader.Dir(),
		"rules", len(rules),
		"shortcuts", len(shortcuts),
		"window", opts.Engine.Window,
		"personalization", opts.Engine.Personalization)
	return d, nil
}

// Start begins watching the config directory for changes.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}
	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	d.running = true
	d.rec.Log(telemetry.DaemonStart, map[string]any{"config_dir": d.loader.Dir()})
	slog.Info("daemon started")
	return nil
}

// Stop ends the watcher and every subscription. The recorder is owned by
// the caller and is not stopped.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	d.watcher.Stop()
	d.hub.close()
	d.rec.Log(telemetry.DaemonStop, nil)
	slog.Info("daemon stopped")
}

// SendEventJSON parses a JSON event and processes it. Parse failures are
// recorded as errors and returned wrapped in ErrBadEvent.
func (d *Daemon) SendEventJSON(data []byte) ([]model.SuggestionResult, error) {
	start := time.Now()
	ev, err := ParseEvent(data, d.now())
	if err != nil {
		d.rec.LogTimed(telemetry.ErrorOccurred, time.Since(start), map[string]any{
			"error":      err.Error(),
			"error_type": "bad_event",
		})
		slog.Warn("rejected event", "err", err)
		return nil, err
	}
	return d.SendEvent(ev), nil
}

// SendEvent runs ev through the engine, records telemetry, publishes the
// result and returns the suggestions.
func (d *Daemon) SendEvent(ev model.Event) []model.SuggestionResult {
	if !ev.Type.Known() {
		slog.Debug("unrecognized event type", "type", ev.Type, "action", ev.Action)
	}
	start := time.Now()
	results := d.engine.SubmitEvent(ev)
	processing := time.Since(start)
	latency := d.now().Sub(ev.Timestamp)

	slog.Info("event processed",
		"action", ev.Action,
		"type", ev.Type,
		"suggestions", len(results),
		"processing", processing,
		"latency", latency)
	for i, s := range results {
		slog.Debug("suggestion", "rank", i+1, "action", s.Action, "key", s.Key, "priority", s.Priority, "rule", s.Rule)
	}

	d.rec.LogTimed(telemetry.EventReceived, processing, map[string]any{
		"action":            ev.Action,
		"type":              string(ev.Type),
		"suggestions_count": len(results),
		"latency_seconds":   latency.Seconds(),
	})
	for _, s := range results {
		d.rec.Log(telemetry.SuggestionShown, map[string]any{
			"action":   s.Action,
			"key":      s.Key,
			"priority": s.Priority,
			"rule":     s.Rule,
		})
	}

	if results == nil {
		results = []model.SuggestionResult{}
	}
	d.hub.publish(Notification{
		EventID:     uuid.NewString(),
		Time:        d.now(),
		Action:      ev.Action,
		Suggestions: results,
	})
	return results
}

// Accept records that the user took a suggested action.
func (d *Daemon) Accept(action, ruleName string) error {
	action = model.CanonicalAction(action)
	if action == "" {
		return fmt.Errorf("%w: action required", ErrBadEvent)
	}
	d.engine.SubmitAcceptance(action, ruleName)
	d.rec.Log(telemetry.SuggestionAccepted, map[string]any{"action": action, "rule": ruleName})
	slog.Info("suggestion accepted", "action", action, "rule", ruleName)
	return nil
}

// AcceptanceCount returns how often action was accepted since startup.
func (d *Daemon) AcceptanceCount(action string) int {
	return d.engine.AcceptanceCount(action)
}

// BufferState returns the buffered events, oldest first.
func (d *Daemon) BufferState() []model.Event {
	return d.engine.Snapshot()
}

// Stats reports engine table and buffer sizes.
func (d *Daemon) Stats() engine.Stats {
	return d.engine.Stats()
}

// Metrics returns the telemetry counters and timings.
func (d *Daemon) Metrics() telemetry.Metrics {
	return d.rec.Metrics()
}

// Subscribers returns the active subscription count and how many
// notifications slow subscribers have missed.
func (d *Daemon) Subscribers() SubscriberStats {
	return d.hub.stats()
}

// ConfigDir returns the directory the tables are loaded from.
func (d *Daemon) ConfigDir() string {
	return d.loader.Dir()
}

// Subscribe returns a channel receiving one Notification per processed
// event, and a func that ends the subscription.
func (d *Daemon) Subscribe() (<-chan Notification, func()) {
	return d.hub.subscribe()
}

// Reload re-reads one table file, or both when name is empty. On error the
// active tables are left untouched, and a two-file reload applies both or
// neither. Other file names are ignored.
func (d *Daemon) Reload(name string) error {
	start := time.Now()
	var err error
	switch name {
	case config.ShortcutsFile:
		err = d.reloadShortcuts()
	case config.RulesFile:
		err = d.reloadRules()
	case "":
		err = d.reloadAll()
		name = "all"
	case config.SettingsFile:
		slog.Info("settings changed, restart the daemon to apply", "file", name)
		return nil
	default:
		slog.Debug("ignoring change", "file", name)
		return nil
	}

	if err != nil {
		d.rec.LogError(err.Error(), map[string]any{"op": "reload", "file": name})
		slog.Error("config reload failed", "file", name, "err", err)
		return err
	}
	d.rec.LogTimed(telemetry.ConfigReload, time.Since(start), map[string]any{"file": name})
	slog.Info("reloaded config", "file", name)
	return nil
}

func (d *Daemon) reloadShortcuts() error {
	shortcuts, err := d.loader.LoadShortcuts()
	if err != nil {
		return err
	}
	return d.engine.ReplaceShortcuts(shortcuts)
}

func (d *Daemon) reloadRules() error {
	rules, err := d.loader.LoadRules()
	if err != nil {
		return err
	}
	return d.engine.ReplaceRules(rules)
}

// reloadAll parses both files before swapping either.
func (d *Daemon) reloadAll() error {
	shortcuts, rules, err := d.loader.Load()
	if err != nil {
		return err
	}
	for _, w := range config.CrossCheck(shortcuts, rules) {
		slog.Warn("config check", "warning", w)
	}
	return d.engine.ReplaceTables(rules, shortcuts)
}

func (d *Daemon) onFileChange(name string) {
	// Errors are logged and recorded by Reload; the old tables stay active.
	_ = d.Reload(name)
}
