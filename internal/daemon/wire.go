package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/model"
)

// ErrBadEvent is returned for event payloads that cannot be ingested.
var ErrBadEvent = errors.New("bad event")

// EventRequest is the JSON form of an incoming event.
type EventRequest struct {
	Timestamp string            `json:"timestamp,omitempty"`
	Type      string            `json:"type"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// zone-less layouts are read in local time.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 (with Z or an offset) and zone-less ISO
// timestamps, which are taken as local time.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrBadEvent, s)
}

// ToEvent validates the request and builds the event. A missing timestamp
// means the event happened at now.
func (r EventRequest) ToEvent(now time.Time) (model.Event, error) {
	if strings.TrimSpace(r.Type) == "" {
		return model.Event{}, fmt.Errorf("%w: type required", ErrBadEvent)
	}
	if strings.TrimSpace(r.Action) == "" {
		return model.Event{}, fmt.Errorf("%w: action required", ErrBadEvent)
	}
	ts := now
	if r.Timestamp != "" {
		var err error
		if ts, err = ParseTimestamp(r.Timestamp); err != nil {
			return model.Event{}, err
		}
	}
	return model.NewEvent(ts, model.EventType(strings.TrimSpace(r.Type)), r.Action, r.Metadata), nil
}

// ParseEvent decodes a JSON event payload.
func ParseEvent(data []byte, now time.Time) (model.Event, error) {
	var req EventRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return model.Event{}, fmt.Errorf("%w: invalid json: %v", ErrBadEvent, err)
	}
	return req.ToEvent(now)
}
