package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coldaine/ShortcutSage/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memSink struct {
	mu      sync.Mutex
	batches [][]store.TelemetryEntry
	err     error
}

func (s *memSink) InsertTelemetry(entries []store.TelemetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]store.TelemetryEntry(nil), entries...))
	return s.err
}

func (s *memSink) entries() []store.TelemetryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []store.TelemetryEntry
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

func (s *memSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestRecorderCountersAndTimings(t *testing.T) {
	r := New(nil, Options{Clock: func() time.Time { return t0 }})
	defer r.Stop()

	r.Log(DaemonStart, nil)
	r.LogTimed(EventReceived, 2*time.Millisecond, nil)
	r.LogTimed(EventReceived, 6*time.Millisecond, nil)
	r.LogError("boom", nil)

	assert.Equal(t, 2, r.Counter(EventReceived))
	assert.Equal(t, 0, r.Counter(SuggestionShown))

	m := r.Metrics()
	assert.Equal(t, map[string]int{"daemon_start": 1, "event_received": 2, "error_occurred": 1}, m.Counters)
	require.Contains(t, m.Timings, "event_received")
	tm := m.Timings["event_received"]
	assert.Equal(t, 2, tm.Count)
	assert.InDelta(t, 0.004, tm.Avg, 1e-9)
	assert.InDelta(t, 0.002, tm.Min, 1e-9)
	assert.InDelta(t, 0.006, tm.Max, 1e-9)
	assert.NotContains(t, m.Timings, "daemon_start")
}

func TestRecorderUptime(t *testing.T) {
	now := t0
	r := New(nil, Options{Clock: func() time.Time { return now }})
	now = t0.Add(90 * time.Second)
	assert.Equal(t, 90.0, r.Metrics().UptimeSeconds)
}

func TestRecorderFlushesOnBatchSize(t *testing.T) {
	sink := &memSink{}
	r := New(sink, Options{BatchSize: 3, FlushInterval: time.Hour, Clock: func() time.Time { return t0 }})
	defer r.Stop()

	for range 3 {
		r.Log(EventReceived, nil)
	}
	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, time.Second, 5*time.Millisecond)

	got := sink.entries()
	require.Len(t, got, 3)
	assert.Equal(t, "event_received", got[0].Type)
	assert.Equal(t, t0.UnixMilli(), got[0].CreatedAt)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	sink := &memSink{}
	r := New(sink, Options{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	defer r.Stop()

	r.Log(ConfigReload, map[string]any{"file": "rules.yaml"})
	require.Eventually(t, func() bool { return len(sink.entries()) == 1 }, time.Second, 5*time.Millisecond)

	var props map[string]any
	require.NoError(t, json.Unmarshal([]byte(sink.entries()[0].Properties), &props))
	assert.Equal(t, "rules.yaml", props["file"])
}

func TestRecorderStopDrains(t *testing.T) {
	sink := &memSink{}
	r := New(sink, Options{BatchSize: 100, FlushInterval: time.Hour})

	for range 5 {
		r.LogTimed(SuggestionShown, time.Millisecond, nil)
	}
	r.Stop()
	r.Stop()

	got := sink.entries()
	require.Len(t, got, 5)
	assert.True(t, got[0].Timed)
	assert.Equal(t, time.Millisecond, got[0].Duration)

	// After Stop the entry is not persisted but still counted.
	r.Log(DaemonStop, nil)
	assert.Len(t, sink.entries(), 5)
	assert.Equal(t, 1, r.Counter(DaemonStop))
}

func TestRecorderDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	r := New(sink, Options{QueueSize: 1, BatchSize: 1, FlushInterval: time.Hour})

	// The first entry is taken by the writer, which then blocks in the sink;
	// the second fills the queue; the rest are dropped.
	r.Log(EventReceived, nil)
	require.Eventually(t, func() bool { return sink.calls() == 1 }, time.Second, 5*time.Millisecond)
	for range 5 {
		r.Log(EventReceived, nil)
	}
	assert.Equal(t, int64(4), r.Metrics().Dropped)
	assert.Equal(t, 6, r.Counter(EventReceived))

	close(block)
	r.Stop()
}

func TestRecorderSinkErrorIsSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	r := New(sink, Options{BatchSize: 1})
	r.LogError("x", map[string]any{"op": "reload"})
	r.Stop()

	got := sink.entries()
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"error":"x","context":{"op":"reload"}}`, got[0].Properties)
}

func TestRecorderWithStore(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	r := New(db, Options{BatchSize: 2})
	r.Log(DaemonStart, nil)
	r.LogTimed(EventReceived, 3*time.Millisecond, map[string]any{"action": "show_desktop"})
	r.Log(DaemonStop, nil)
	r.Stop()

	s, err := db.SummarizeTelemetry(0)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Count("event_received"))
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (s *blockingSink) InsertTelemetry([]store.TelemetryEntry) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	<-s.release
	return nil
}

func (s *blockingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
