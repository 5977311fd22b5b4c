package features

import (
	"strings"

	"github.com/Coldaine/ShortcutSage/internal/engine/buffer"
)

// sequenceLen is how many trailing actions form ActionSequence.
const sequenceLen = 3

// Features is a flat snapshot of recent activity.
type Features struct {
	RecentActions  []string
	EventCount     int
	LastAction     string // empty when the buffer is empty
	ActionSequence string
	UniqueActions  map[string]struct{}
}

// HasAction reports whether action occurs in RecentActions.
func (f Features) HasAction(action string) bool {
	_, ok := f.UniqueActions[action]
	return ok
}

// Extract derives Features from the buffer's current contents.
func Extract(b *buffer.Buffer) Features {
	actions := b.Actions()

	f := Features{
		RecentActions: actions,
		EventCount:    len(actions),
		UniqueActions: make(map[string]struct{}, len(actions)),
	}
	if len(actions) == 0 {
		return f
	}

	f.LastAction = actions[len(actions)-1]
	tail := actions[max(0, len(actions)-sequenceLen):]
	f.ActionSequence = strings.Join(tail, "_")
	for _, a := range actions {
		f.UniqueActions[a] = struct{}{}
	}
	return f
}
