package buffer

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func event(action string, offset time.Duration) model.Event {
	return model.NewEvent(t0.Add(offset), model.EventTest, action, nil)
}

func newBuffer(t *testing.T, window time.Duration) *Buffer {
	t.Helper()
	b, err := New(window)
	if err != nil {
		t.Fatalf("New(%s): %v", window, err)
	}
	return b
}

func wantActions(t *testing.T, b *Buffer, want ...string) {
	t.Helper()
	if got := b.Actions(); !slices.Equal(got, want) {
		t.Errorf("Actions() = %v, want %v", got, want)
	}
}

func TestNewRejectsNonPositiveWindow(t *testing.T) {
	for _, w := range []time.Duration{0, -time.Second} {
		_, err := New(w)
		if !errors.Is(err, model.ErrInvalidConfiguration) {
			t.Errorf("New(%s) error = %v, want ErrInvalidConfiguration", w, err)
		}
	}
}

func TestAddPrunesRelativeToLastEvent(t *testing.T) {
	b := newBuffer(t, 3*time.Second)

	b.Add(event("a", 0))
	b.Add(event("b", time.Second))
	b.Add(event("c", 2*time.Second))
	wantActions(t, b, "a", "b", "c")

	// cutoff = 3s - 3s = 0s; "a" sits exactly on the cutoff and is dropped.
	b.Add(event("d", 3*time.Second))
	wantActions(t, b, "b", "c", "d")

	b.Add(event("e", 10*time.Second))
	wantActions(t, b, "e")
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestRetainedEventsInsideWindow(t *testing.T) {
	window := 2500 * time.Millisecond
	b := newBuffer(t, window)

	offsets := []time.Duration{0, 400, 900, 2600, 2700, 5000, 5100, 7600, 7601, 9000}
	for i, ms := range offsets {
		b.Add(event(string(rune('a'+i)), ms*time.Millisecond))
		last := t0.Add(ms * time.Millisecond)
		for _, e := range b.Recent() {
			if !e.Timestamp.After(last.Add(-window)) {
				t.Errorf("event at %s retained after add at %s", e.Timestamp, last)
			}
		}
	}
}

func TestRecentIgnoresWallClock(t *testing.T) {
	b := newBuffer(t, time.Second)

	// Events far in the past: pruning must not consult time.Now.
	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Add(model.NewEvent(old, model.EventTest, "x", nil))
	b.Add(model.NewEvent(old.Add(500*time.Millisecond), model.EventTest, "y", nil))

	first := b.Recent()
	time.Sleep(10 * time.Millisecond)
	second := b.Recent()
	if len(second) != 2 {
		t.Fatalf("Recent() = %d events, want 2", len(second))
	}
	for i := range first {
		if first[i].Action != second[i].Action || !first[i].Timestamp.Equal(second[i].Timestamp) {
			t.Errorf("Recent()[%d] changed between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRecentReturnsSnapshot(t *testing.T) {
	b := newBuffer(t, time.Minute)
	b.Add(event("a", 0))

	snap := b.Recent()
	snap[0].Action = "mutated"
	wantActions(t, b, "a")
}

func TestActionsMatchesRecentOrder(t *testing.T) {
	b := newBuffer(t, time.Minute)
	for i, a := range []string{"tile_left", "overview", "tile_left", "show_desktop"} {
		b.Add(event(a, time.Duration(i)*time.Second))
	}

	recent := b.Recent()
	actions := b.Actions()
	if len(actions) != len(recent) {
		t.Fatalf("Actions() = %d entries, Recent() = %d", len(actions), len(recent))
	}
	for i := range recent {
		if recent[i].Action != actions[i] {
			t.Errorf("Actions()[%d] = %q, want %q", i, actions[i], recent[i].Action)
		}
	}
}

func TestClear(t *testing.T) {
	b := newBuffer(t, time.Minute)
	b.Add(event("a", 0))
	b.Add(event("b", time.Second))

	b.Clear()
	if b.Len() != 0 || len(b.Recent()) != 0 {
		t.Errorf("after Clear: Len = %d, Recent = %v", b.Len(), b.Recent())
	}

	b.Add(event("c", 2*time.Second))
	wantActions(t, b, "c")
}
