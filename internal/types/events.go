package types

import "time"

// EventType tags a StreamEvent variant.
type EventType string

const (
	EventTaskStarted   EventType = "task-started"
	EventPlanReady     EventType = "plan-ready"
	EventStepStarted   EventType = "step-started"
	EventContentChunk  EventType = "content-chunk"
	EventStepCompleted EventType = "step-completed"
	EventStepFailed    EventType = "step-failed"
	EventTaskCompleted EventType = "task-completed"
	EventTaskCancelled EventType = "task-cancelled"
	EventTaskError     EventType = "task-error"
)

// StreamEvent is the unit on the event bus. Exactly one payload field is
// populated, selected by Type. Seq is assigned by the bus and is strictly
// increasing per session.
type StreamEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`

	Plan    *Plan       `json:"plan,omitempty"`    // plan-ready
	Step    int         `json:"step,omitempty"`    // step-started
	Path    string      `json:"path,omitempty"`    // step-started, content-chunk, step-failed
	Chunk   string      `json:"chunk,omitempty"`   // content-chunk
	Result  *StepResult `json:"result,omitempty"`  // step-completed
	Reason  string      `json:"reason,omitempty"`  // step-failed, task-error
	Kind    string      `json:"kind,omitempty"`    // task-error classification
	Summary *Summary    `json:"summary,omitempty"` // task-completed
}
