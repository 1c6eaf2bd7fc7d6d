package proctor

import (
	"context"
	"sync"
	"time"
)

// Answer is a locally recorded answer with its last-modified timestamp.
type Answer struct {
	Text string
	At   time.Time
}

// AnswerStore pushes a single answer to remote storage. Implementations are
// fire-and-report: no automatic retry, no durability guarantee.
type AnswerStore interface {
	SaveAnswer(ctx context.Context, questionID, text string) error
}

// Persister wraps an AnswerStore and tracks per-question save acknowledgments
// so the UI layer can show which answers are confirmed saved. It only ever
// receives answer copies; it never mutates canonical session state.
type Persister struct {
	mu    sync.Mutex
	store AnswerStore
	saved map[string]bool
}

// NewPersister creates a Persister over the given store.
func NewPersister(store AnswerStore) *Persister {
	return &Persister{
		store: store,
		saved: make(map[string]bool),
	}
}

// Save persists one answer. On success the question is marked confirmed
// saved; on failure it stays unsaved and the error is reported to the caller.
func (p *Persister) Save(ctx context.Context, questionID, text string) error {
	if err := p.store.SaveAnswer(ctx, questionID, text); err != nil {
		p.mu.Lock()
		p.saved[questionID] = false
		p.mu.Unlock()
		return &SaveError{QuestionID: questionID, Err: err}
	}

	p.mu.Lock()
	p.saved[questionID] = true
	p.mu.Unlock()
	return nil
}

// IsSaved reports whether the question's latest answer was acknowledged.
func (p *Persister) IsSaved(questionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved[questionID]
}

// FlushAll best-effort persists every non-empty answer before finalization.
// A single failure does not abort the remaining flushes; all failures are
// surfaced together as a *FlushError.
func (p *Persister) FlushAll(ctx context.Context, answers map[string]Answer) error {
	var failed []*SaveError

	for questionID, ans := range answers {
		if isBlank(ans.Text) {
			continue
		}
		if err := p.Save(ctx, questionID, ans.Text); err != nil {
			if se, ok := err.(*SaveError); ok {
				failed = append(failed, se)
			} else {
				failed = append(failed, &SaveError{QuestionID: questionID, Err: err})
			}
		}
	}

	if len(failed) > 0 {
		return &FlushError{Failed: failed}
	}
	return nil
}
