package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states. The transition is monotonic:
// IN_PROGRESS → COMPLETED, never back.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// QuizSession represents a student's timed quiz attempt. StartedAt and
// DurationMinutes are fixed at creation; Score and TotalMarks are populated
// only after completion.
type QuizSession struct {
	ID              uuid.UUID     `json:"id"`
	QuizID          uuid.UUID     `json:"quiz_id"`
	StudentID       int           `json:"student_id"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	Score           *float64      `json:"score,omitempty"`
	TotalMarks      *int          `json:"total_marks,omitempty"`
}

// StartSessionRequest is the payload for starting a quiz session.
// A custom duration overrides the quiz set's configured duration.
type StartSessionRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// SessionState is the canonical server-side state returned on page reload:
// autosaved answers plus the authoritative remaining time. Clients must not
// trust any locally cached copy.
type SessionState struct {
	QuizID           uuid.UUID         `json:"quiz_id"`
	StudentID        int               `json:"student_id"`
	Status           SessionStatus     `json:"status"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	ViolationCount   int64             `json:"violation_count"`
}

// ScoredSession is the terminal result of a submitted session.
type ScoredSession struct {
	SessionID  uuid.UUID  `json:"session_id"`
	QuizID     uuid.UUID  `json:"quiz_id"`
	StudentID  int        `json:"student_id"`
	Score      float64    `json:"score"`
	TotalMarks int        `json:"total_marks"`
	AutoSubmit bool       `json:"auto_submit"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
