// Package audit summarizes the telemetry log into a developer report.
package audit

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Coldaine/ShortcutSage/internal/store"
)

const (
	// errorRateLimit is the share of error_occurred entries above which the
	// report flags an issue.
	errorRateLimit = 0.05

	// slowLimit is the average duration above which an event type is flagged.
	slowLimit = time.Second
)

// Source provides the aggregated telemetry log. *store.DB satisfies it.
type Source interface {
	SummarizeTelemetry(since int64) (store.TelemetrySummary, error)
}

// Report is the result of an audit run.
type Report struct {
	Generated    time.Time
	Total        int
	First, Last  time.Time
	Counts       map[string]int
	AvgDurations map[string]time.Duration
	ErrorCount   int
	Issues       []string
	Suggestions  []string
}

// Generate reads the log from src since the given time (zero for all) and
// builds a report stamped now.
func Generate(src Source, since, now time.Time) (Report, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	}
	s, err := src.SummarizeTelemetry(from)
	if err != nil {
		return Report{}, fmt.Errorf("audit: %w", err)
	}
	return Build(s, now), nil
}

// Build turns a summary into a report.
func Build(s store.TelemetrySummary, now time.Time) Report {
	r := Report{
		Generated:    now,
		Total:        s.Total,
		First:        s.First,
		Last:         s.Last,
		Counts:       make(map[string]int, len(s.Types)),
		AvgDurations: make(map[string]time.Duration),
	}
	if s.Total == 0 {
		r.Issues = []string{"No telemetry data found"}
		return r
	}

	for _, ts := range s.Types {
		r.Counts[ts.Type] = ts.Count
		if ts.Timed > 0 {
			r.AvgDurations[ts.Type] = ts.AvgDuration
		}
	}

	r.ErrorCount = r.Counts["error_occurred"]
	if rate := float64(r.ErrorCount) / float64(r.Total); rate > errorRateLimit {
		r.Issues = append(r.Issues, fmt.Sprintf("High error rate: %.2f%% (%d/%d)", rate*100, r.ErrorCount, r.Total))
	}

	for _, typ := range sortedKeys(r.AvgDurations) {
		if avg := r.AvgDurations[typ]; avg > slowLimit {
			r.Issues = append(r.Issues, fmt.Sprintf("Slow %s: avg %.2fs", typ, avg.Seconds()))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("Optimize %s processing", typ))
		}
	}

	if shown := r.Counts["suggestion_shown"]; shown > 0 {
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Review %s shown suggestions for relevance", humanize.Comma(int64(shown))))
	}
	return r
}

// Format writes the report as plain text.
func (r Report) Format(w io.Writer) {
	fmt.Fprintln(w, "Shortcut Sage - Audit Report")
	fmt.Fprintf(w, "Generated: %s\n\n", r.Generated.Format(time.RFC3339))

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Total Events: %s\n", humanize.Comma(int64(r.Total)))
	if !r.First.IsZero() {
		fmt.Fprintf(w, "  Time Range: %s to %s (%s)\n",
			r.First.Format(time.RFC3339), r.Last.Format(time.RFC3339),
			humanize.RelTime(r.First, r.Generated, "ago", "from now"))
		fmt.Fprintf(w, "  Duration: %.2f hours\n", r.Last.Sub(r.First).Hours())
	}
	fmt.Fprintf(w, "  Error Count: %d\n", r.ErrorCount)

	if len(r.Counts) > 0 {
		fmt.Fprintln(w, "\nEvent Type Counts:")
		for _, typ := range sortedKeys(r.Counts) {
			fmt.Fprintf(w, "  %s: %s\n", typ, humanize.Comma(int64(r.Counts[typ])))
		}
	}
	if len(r.AvgDurations) > 0 {
		fmt.Fprintln(w, "\nAverage Durations:")
		for _, typ := range sortedKeys(r.AvgDurations) {
			fmt.Fprintf(w, "  %s: %.3fs\n", typ, r.AvgDurations[typ].Seconds())
		}
	}
	writeList(w, "Issues Found", r.Issues)
	writeList(w, "Suggestions", r.Suggestions)
}

// String returns the formatted report.
func (r Report) String() string {
	var b strings.Builder
	r.Format(&b)
	return b.String()
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
