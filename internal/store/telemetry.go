package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TelemetryEntry is one row of the telemetry log.
type TelemetryEntry struct {
	ID         string // uuid
	Type       string
	Duration   time.Duration
	Timed      bool   // Duration was measured
	Properties string // JSON object, empty if none
	CreatedAt  int64  // unix ms
}

// InsertTelemetry writes entries in one transaction.
func (db *DB) InsertTelemetry(entries []TelemetryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin telemetry insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO telemetry (entry_id, event_type, duration_us, properties, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare telemetry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var dur, props any
		if e.Timed {
			dur = e.Duration.Microseconds()
		}
		if e.Properties != "" {
			props = e.Properties
		}
		if _, err := stmt.Exec(e.ID, e.Type, dur, props, e.CreatedAt); err != nil {
			return fmt.Errorf("insert telemetry %s: %w", e.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry insert: %w", err)
	}
	return nil
}

// RecentTelemetry returns up to limit entries, newest first.
func (db *DB) RecentTelemetry(limit int) ([]TelemetryEntry, error) {
	rows, err := db.Query(`
		SELECT entry_id, event_type, duration_us, COALESCE(properties, ''), created_at
		FROM telemetry ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent telemetry: %w", err)
	}
	defer rows.Close()

	var entries []TelemetryEntry
	for rows.Next() {
		var e TelemetryEntry
		var dur sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Type, &dur, &e.Properties, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		if dur.Valid {
			e.Timed = true
			e.Duration = time.Duration(dur.Int64) * time.Microsecond
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TypeStats aggregates the entries of one event type.
type TypeStats struct {
	Type        string
	Count       int
	Timed       int
	AvgDuration time.Duration // over timed entries only
}

// TelemetrySummary aggregates the log since a point in time.
type TelemetrySummary struct {
	Total int
	First time.Time // zero if Total == 0
	Last  time.Time
	Types []TypeStats // sorted by type
}

// Count returns the number of entries of the given type.
func (s TelemetrySummary) Count(typ string) int {
	for _, t := range s.Types {
		if t.Type == typ {
			return t.Count
		}
	}
	return 0
}

// SummarizeTelemetry aggregates entries created at or after since (unix ms).
// Pass 0 for the whole log.
func (db *DB) SummarizeTelemetry(since int64) (TelemetrySummary, error) {
	var s TelemetrySummary
	var first, last sql.NullInt64
	err := db.QueryRow(`
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM telemetry WHERE created_at >= ?
	`, since).Scan(&s.Total, &first, &last)
	if err != nil {
		return s, fmt.Errorf("summarize telemetry: %w", err)
	}
	if first.Valid {
		s.First = time.UnixMilli(first.Int64)
		s.Last = time.UnixMilli(last.Int64)
	}

	rows, err := db.Query(`
		SELECT event_type, COUNT(*), COUNT(duration_us), AVG(duration_us)
		FROM telemetry WHERE created_at >= ?
		GROUP BY event_type ORDER BY event_type
	`, since)
	if err != nil {
		return s, fmt.Errorf("summarize telemetry types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		var avg sql.NullFloat64
		if err := rows.Scan(&ts.Type, &ts.Count, &ts.Timed, &avg); err != nil {
			return s, fmt.Errorf("scan telemetry stats: %w", err)
		}
		if avg.Valid {
			ts.AvgDuration = time.Duration(avg.Float64 * float64(time.Microsecond))
		}
		s.Types = append(s.Types, ts)
	}
	return s, rows.Err()
}

// PruneTelemetry deletes entries created before the given unix ms and returns
// how many were removed.
func (db *DB) PruneTelemetry(before int64) (int64, error) {
	res, err := db.Exec("DELETE FROM telemetry WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune telemetry: %w", err)
	}
	return res.RowsAffected()
}
