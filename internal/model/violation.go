package model

import (
	"time"

	"github.com/google/uuid"
)

// Violation is a persisted integrity violation event. The log is append-only;
// per-session counts are monotonically non-decreasing.
type Violation struct {
	ID         int64     `json:"id"`
	QuizID     uuid.UUID `json:"quiz_id"`
	StudentID  int       `json:"student_id"`
	EventType  string    `json:"event_type"`
	EventData  string    `json:"event_data,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
