package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuizStatus enumerates the possible states of a quiz set.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusPublished QuizStatus = "PUBLISHED"
	QuizStatusArchived  QuizStatus = "ARCHIVED"
)

// Subject enumerates the subjects quiz sets are organized by.
type Subject string

const (
	SubjectMathematics Subject = "mathematics"
	SubjectPhysics     Subject = "physics"
	SubjectChemistry   Subject = "chemistry"
	SubjectBiology     Subject = "biology"
)

// QuizSet represents a timed quiz: an ordered collection of questions with a
// duration and total marks. Questions are immutable once a session starts.
type QuizSet struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Subject         Subject    `json:"subject"`
	Year            *int       `json:"year,omitempty"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	QuestionCount   int        `json:"question_count"`
	Status          QuizStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateQuizRequest is the payload for creating a new quiz set.
// DurationMinutes may be omitted: the effective duration then falls back to
// 2 minutes per question when a session starts.
type CreateQuizRequest struct {
	Title           string  `json:"title" binding:"required,min=3,max=255"`
	Subject         Subject `json:"subject" binding:"required,oneof=mathematics physics chemistry biology"`
	Year            *int    `json:"year" binding:"omitempty,gte=2000,lte=2100"`
	DurationMinutes int     `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// UpdateQuizRequest is the payload for updating an existing quiz set.
type UpdateQuizRequest struct {
	Title           string  `json:"title" binding:"omitempty,min=3,max=255"`
	Subject         Subject `json:"subject" binding:"omitempty,oneof=mathematics physics chemistry biology"`
	Year            *int    `json:"year" binding:"omitempty,gte=2000,lte=2100"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// QuizPayload is the Redis-cached payload sent to students (no correct answers).
type QuizPayload struct {
	QuizID    uuid.UUID            `json:"quiz_id"`
	Title     string               `json:"title"`
	Subject   Subject              `json:"subject"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	Options      json.RawMessage `json:"options,omitempty"`
	Marks        int             `json:"marks"`
	OrderNum     int             `json:"order_num"`
}
