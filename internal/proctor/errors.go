package proctor

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	// ErrNoQuestions is fatal to session start: a quiz with zero questions
	// cannot be initialized.
	ErrNoQuestions = errors.New("quiz has no questions")

	// ErrNotStarted is returned when an operation requires a running session.
	ErrNotStarted = errors.New("session has not been started")

	// ErrCompleted is returned by operations that cannot run on a terminal
	// session (where silence is not the contract).
	ErrCompleted = errors.New("session is already completed")
)

// SaveError records a failed persistence attempt for a single answer. The
// answer stays unsaved locally; the caller may retry or warn the user.
type SaveError struct {
	QuestionID string
	Err        error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save answer %s: %v", e.QuestionID, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// FlushError aggregates per-answer failures from a best-effort flush. A
// partial failure never aborts the remaining saves.
type FlushError struct {
	Failed []*SaveError
}

func (e *FlushError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = f.QuestionID
	}
	return fmt.Sprintf("flush failed for %d answer(s): %s", len(e.Failed), strings.Join(ids, ", "))
}
