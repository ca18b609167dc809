// ABOUTME: BufferedEvent model and EventKind enum for session telemetry.
// ABOUTME: Every domain transition produces one event.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a domain transition.
type EventKind string

const (
	// Session lifecycle
	EventSessionStarted   EventKind = "session-started"
	EventSessionPaused    EventKind = "session-paused"
	EventSessionResumed   EventKind = "session-resumed"
	EventSessionFinished  EventKind = "session-finished"
	EventSessionAbandoned EventKind = "session-abandoned"

	// Sets and rest
	EventSetCompleted EventKind = "set-completed"
	EventSetFailed    EventKind = "set-failed"
	EventRestStarted  EventKind = "rest-started"
	EventRestSkipped  EventKind = "rest-skipped"

	// Recovery and sync
	EventSnapshotRecovered EventKind = "snapshot-recovered"
	EventSyncError         EventKind = "sync-error"
)

// AllEventKinds returns all valid event kinds.
var AllEventKinds = []EventKind{
	EventSessionStarted, EventSessionPaused, EventSessionResumed,
	EventSessionFinished, EventSessionAbandoned,
	EventSetCompleted, EventSetFailed, EventRestStarted, EventRestSkipped,
	EventSnapshotRecovered, EventSyncError,
}

// IsValidEventKind checks if a string is a valid event kind.
func IsValidEventKind(s string) bool {
	for _, k := range AllEventKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// BufferedEvent is a telemetry record waiting to be flushed.
type BufferedEvent struct {
	ID        uuid.UUID      `json:"id"`
	Kind      EventKind      `json:"kind"`
	At        time.Time      `json:"at"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewBufferedEvent creates an event with a generated UUID.
func NewBufferedEvent(kind EventKind, sessionID string, at time.Time) *BufferedEvent {
	return &BufferedEvent{
		ID:        uuid.New(),
		Kind:      kind,
		At:        at,
		SessionID: sessionID,
	}
}

// WithPayload sets the free-form payload.
func (e *BufferedEvent) WithPayload(payload map[string]any) *BufferedEvent {
	e.Payload = payload
	return e
}
