/*
Package telemetry records what the daemon does: events received,
suggestions shown and accepted, reloads, errors and lifecycle.

A Recorder keeps in-memory counters and timing stats, and hands entries to a
Sink in the background. Logging never blocks the caller; when the queue is
full the entry is dropped from the log (counters still see it).
*/
package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Coldaine/ShortcutSage/internal/store"
)

// Type names a telemetry event.
type Type string

const (
	EventReceived      Type = "event_received"
	SuggestionShown    Type = "suggestion_shown"
	SuggestionAccepted Type = "suggestion_accepted"
	DaemonStart        Type = "daemon_start"
	DaemonStop         Type = "daemon_stop"
	ConfigReload       Type = "config_reload"
	ErrorOccurred      Type = "error_occurred"
)

const (
	defaultQueueSize     = 1000
	defaultBatchSize     = 32
	defaultFlushInterval = 2 * time.Second
)

// Sink persists batches of entries. *store.DB satisfies it.
type Sink interface {
	InsertTelemetry(entries []store.TelemetryEntry) error
}

// Options tune the background writer. Zero values take defaults.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Clock         func() time.Time
}

// Recorder collects metrics and forwards entries to a Sink.
type Recorder struct {
	sink      Sink
	queue     chan store.TelemetryEntry
	batchSize int
	interval  time.Duration
	now       func() time.Time
	started   time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64

	mu       sync.Mutex
	counters map[Type]int
	timings  map[Type]*timing
}

type timing struct {
	count         int
	sum, min, max time.Duration
}

// New starts a Recorder. A nil sink keeps metrics in memory only.
func New(sink Sink, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &Recorder{
		sink:      sink,
		queue:     make(chan store.TelemetryEntry, opts.QueueSize),
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		now:       opts.Clock,
		started:   opts.Clock(),
		stopCh:    make(chan struct{}),
		counters:  make(map[Type]int),
		timings:   make(map[Type]*timing),
	}
	if sink != nil {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Log records an untimed event.
func (r *Recorder) Log(typ Type, props map[string]any) {
	r.record(typ, 0, false, props)
}

// LogTimed records an event with a measured duration.
func (r *Recorder) LogTimed(typ Type, d time.Duration, props map[string]any) {
	r.record(typ, d, true, props)
}

// LogError records an error_occurred event.
func (r *Recorder) LogError(msg string, context map[string]any) {
	props := map[string]any{"error": msg}
	if len(context) > 0 {
		props["context"] = context
	}
	r.record(ErrorOccurred, 0, false, props)
}

func (r *Recorder) record(typ Type, d time.Duration, timed bool, props map[string]any) {
	now := r.now()

	r.mu.Lock()
	r.counters[typ]++
	if timed {
		t, ok := r.timings[typ]
		if !ok {
			t = &timing{min: d, max: d}
			r.timings[typ] = t
		}
		t.count++
		t.sum += d
		t.min = min(t.min, d)
		t.max = max(t.max, d)
	}
	r.mu.Unlock()

	if r.sink == nil {
		return
	}

	entry := store.TelemetryEntry{
		ID:        uuid.NewString(),
		Type:      string(typ),
		Duration:  d,
		Timed:     timed,
		CreatedAt: now.UnixMilli(),
	}
	if len(props) > 0 {
		data, err := json.Marshal(props)
		if err != nil {
			slog.Warn("telemetry properties not serializable", "type", typ, "err", err)
		} else {
			entry.Properties = string(data)
		}
	}

	select {
	case <-r.stopCh:
		r.dropped.Add(1)
		return
	default:
	}
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
	}
}

// run batches queued entries and flushes them on size or interval.
func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]store.TelemetryEntry, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sink.InsertTelemetry(batch); err != nil {
			slog.Warn("telemetry flush failed", "entries", len(batch), "err", err)
		}
		batch = make([]store.TelemetryEntry, 0, r.batchSize)
	}

	for {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stopCh:
			for {
				select {
				case e := <-r.queue:
					batch = append(batch, e)
					if len(batch) >= r.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Stop flushes pending entries and ends the background writer. Later Log
// calls still update counters but are not persisted.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

// Timing summarizes the measured durations of one event type.
type Timing struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	Min   float64 `json:"min_seconds"`
	Max   float64 `json:"max_seconds"`
}

// Metrics is a snapshot of the in-memory collector.
type Metrics struct {
	UptimeSeconds float64           `json:"uptime_seconds"`
	Counters      map[string]int    `json:"counters"`
	Timings       map[string]Timing `json:"timings"`
	Dropped       int64             `json:"dropped"`
}

// Counter returns the number of events of typ recorded so far.
func (r *Recorder) Counter(typ Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[typ]
}

// Metrics returns a snapshot of counters and timing stats.
func (r *Recorder) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		UptimeSeconds: r.now().Sub(r.started).Seconds(),
		Counters:      make(map[string]int, len(r.counters)),
		Timings:       make(map[string]Timing, len(r.timings)),
		Dropped:       r.dropped.Load(),
	}
	for typ, n := range r.counters {
		m.Counters[string(typ)] = n
	}
	for typ, t := range r.timings {
		m.Timings[string(typ)] = Timing{
			Count: t.count,
			Avg:   (t.sum / time.Duration(t.count)).Seconds(),
			Min:   t.min.Seconds(),
			Max:   t.max.Seconds(),
		}
	}
	return m
}
