package buffer

import (
	"fmt"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/model"
)

// Buffer keeps the events that fall within a trailing window measured from
// the most recently added event. It has no locking of its own.
type Buffer struct {
	window time.Duration
	events []model.Event
}

// New creates a Buffer retaining events younger than window.
func New(window time.Duration) (*Buffer, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: buffer window must be positive, got %s", model.ErrInvalidConfiguration, window)
	}
	return &Buffer{window: window}, nil
}

// Window returns the retention span.
func (b *Buffer) Window() time.Duration {
	return b.window
}

// Add appends an event and prunes relative to its timestamp.
func (b *Buffer) Add(e model.Event) {
	b.events = append(b.events, e)
	b.prune()
}

// prune drops events at or before last.Timestamp - window. The reference is
// the newest event, never wall-clock time.
func (b *Buffer) prune() {
	if len(b.events) == 0 {
		return
	}
	cutoff := b.events[len(b.events)-1].Timestamp.Add(-b.window)

	i := 0
	for i < len(b.events) && !b.events[i].Timestamp.After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// Shift down so the backing array does not grow without bound.
	n := copy(b.events, b.events[i:])
	clear(b.events[n:])
	b.events = b.events[:n]
}

// Recent returns the retained events, oldest first. The slice is a copy.
func (b *Buffer) Recent() []model.Event {
	b.prune()
	out := make([]model.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Actions returns the actions of Recent in the same order.
func (b *Buffer) Actions() []string {
	recent := b.Recent()
	actions := make([]string, len(recent))
	for i, e := range recent {
		actions[i] = e.Action
	}
	return actions
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	clear(b.events)
	b.events = b.events[:0]
}

// Len returns the number of retained events.
func (b *Buffer) Len() int {
	return len(b.events)
}
