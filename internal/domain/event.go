package domain

import (
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
)

// Event is one entry in the append-only run narration log. Events are
// totally ordered within a run (single writer) and serialised as JSON lines.
//
// Example JSON representation:
//
//	{
//	    "event_id": "evt-7f3a…",
//	    "run_id": "run-20260825-141503-b2c4",
//	    "event_type": "step.completed",
//	    "timestamp": "2026-08-25T14:22:31Z",
//	    "data": {"step_number": 2, "agent": "qa"}
//	}
type Event struct {
	// EventID uniquely identifies the event.
	EventID string `json:"event_id"`

	// RunID links the event to its run.
	RunID string `json:"run_id"`

	// EventType is one of the closed event-type vocabulary.
	EventType constants.EventType `json:"event_type"`

	// Timestamp is when the event was recorded (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Data carries event-specific fields.
	Data map[string]any `json:"data,omitempty"`
}
