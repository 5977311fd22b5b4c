package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coldaine/ShortcutSage/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestBuildEmpty(t *testing.T) {
	r := Build(store.TelemetrySummary{}, t0)
	assert.Equal(t, []string{"No telemetry data found"}, r.Issues)
	assert.Empty(t, r.Suggestions)
	assert.Contains(t, r.String(), "Total Events: 0")
}

func TestBuildFlagsErrorsAndSlowTypes(t *testing.T) {
	s := store.TelemetrySummary{
		Total: 20,
		First: t0.Add(-2 * time.Hour),
		Last:  t0,
		Types: []store.TypeStats{
			{Type: "error_occurred", Count: 2},
			{Type: "event_received", Count: 12, Timed: 12, AvgDuration: 1500 * time.Millisecond},
			{Type: "suggestion_shown", Count: 6, Timed: 6, AvgDuration: 10 * time.Millisecond},
		},
	}
	r := Build(s, t0)

	assert.Equal(t, 2, r.ErrorCount)
	assert.Equal(t, []string{
		"High error rate: 10.00% (2/20)",
		"Slow event_received: avg 1.50s",
	}, r.Issues)
	assert.Equal(t, []string{
		"Optimize event_received processing",
		"Review 6 shown suggestions for relevance",
	}, r.Suggestions)
	assert.NotContains(t, r.AvgDurations, "error_occurred")
}

func TestBuildErrorRateAtLimit(t *testing.T) {
	s := store.TelemetrySummary{
		Total: 20,
		Types: []store.TypeStats{
			{Type: "error_occurred", Count: 1},
			{Type: "event_received", Count: 19},
		},
	}
	r := Build(s, t0)
	assert.Empty(t, r.Issues, "an error rate of exactly 5 percent is not flagged")
}

func TestFormat(t *testing.T) {
	s := store.TelemetrySummary{
		Total: 1500,
		First: t0.Add(-3 * time.Hour),
		Last:  t0.Add(-time.Hour),
		Types: []store.TypeStats{
			{Type: "event_received", Count: 1500, Timed: 1500, AvgDuration: 2 * time.Millisecond},
		},
	}
	out := Build(s, t0).String()

	for _, want := range []string{
		"Shortcut Sage - Audit Report",
		"Total Events: 1,500",
		"(3 hours ago)",
		"Duration: 2.00 hours",
		"event_received: 1,500",
		"event_received: 0.002s",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Issues Found")
}

type fakeSource struct {
	since int64
	s     store.TelemetrySummary
	err   error
}

func (f *fakeSource) SummarizeTelemetry(since int64) (store.TelemetrySummary, error) {
	f.since = since
	return f.s, f.err
}

func TestGenerate(t *testing.T) {
	src := &fakeSource{s: store.TelemetrySummary{Total: 1, Types: []store.TypeStats{{Type: "daemon_start", Count: 1}}}}
	r, err := Generate(src, time.Time{}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), src.since)
	assert.Equal(t, 1, r.Counts["daemon_start"])

	_, err = Generate(src, t0.Add(-time.Hour), t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(-time.Hour).UnixMilli(), src.since)

	src.err = errors.New("closed")
	_, err = Generate(src, time.Time{}, t0)
	assert.Error(t, err)
}

func TestGenerateFromStore(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertTelemetry([]store.TelemetryEntry{
		{ID: "a", Type: "suggestion_shown", CreatedAt: t0.UnixMilli()},
		{ID: "b", Type: "suggestion_accepted", CreatedAt: t0.UnixMilli()},
	}))
	r, err := Generate(db, time.Time{}, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, []string{"Review 1 shown suggestions for relevance"}, r.Suggestions)
}
