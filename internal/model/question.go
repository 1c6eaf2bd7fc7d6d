package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single quiz question.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	QuizID        uuid.UUID       `json:"quiz_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer string          `json:"correct_answer"`
	Marks         int             `json:"marks"`
	OrderNum      int             `json:"order_num"`
}

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
)

// AddQuestionRequest is the payload for adding a question to a quiz set.
type AddQuestionRequest struct {
	QuestionText  string          `json:"question_text" binding:"required,min=1,max=2000"`
	QuestionType  string          `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE SHORT_ANSWER"`
	Options       json.RawMessage `json:"options" binding:"omitempty"`
	CorrectAnswer string          `json:"correct_answer" binding:"required,max=500"`
	Marks         int             `json:"marks" binding:"min=0,max=100"`
	OrderNum      int             `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
