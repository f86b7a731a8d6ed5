package domain

import "time"

// EventType names an attempt lifecycle transition.
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptCompleted EventType = "attempt.completed"
	EventAttemptAbandoned EventType = "attempt.abandoned"
)

// AttemptEvent is emitted after a lifecycle transition has been persisted.
type AttemptEvent struct {
	Type       EventType `json:"type"`
	AttemptID  string    `json:"attemptId"`
	UserID     string    `json:"userId"`
	TestID     string    `json:"testId"`
	Score      *float64  `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewAttemptEvent builds an event from the attempt's current state.
func NewAttemptEvent(typ EventType, a Attempt, at time.Time) AttemptEvent {
	return AttemptEvent{
		Type:       typ,
		AttemptID:  a.ID,
		UserID:     a.UserID,
		TestID:     a.TestID,
		Score:      a.Score,
		OccurredAt: at,
	}
}
