package server

import (
	"time"

	"github.com/tacchanmaru/talkedit/internal/textdiff"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// UtteranceEvent carries one recognized speech segment for live display.
type UtteranceEvent struct {
	Event
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// EditAppliedEvent carries the model's plan, the updated text, and the
// line diff against the previous text.
type EditAppliedEvent struct {
	Event
	SessionID string          `json:"session_id"`
	Plan      string          `json:"plan"`
	Text      string          `json:"text"`
	Diff      []textdiff.Line `json:"diff"`
}

type SessionErrorEvent struct {
	Event
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type RecordingStoppedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type SessionCompletedEvent struct {
	Event
	SessionID    string `json:"session_id"`
	ExperimentID int64  `json:"experiment_id"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
