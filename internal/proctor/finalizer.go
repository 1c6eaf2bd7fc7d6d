package proctor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ScoredResult is the terminal outcome of a finalized session.
type ScoredResult struct {
	SessionID  string  `json:"session_id"`
	Score      float64 `json:"score"`
	TotalMarks int     `json:"total_marks"`
	AutoSubmit bool    `json:"auto_submit"`
}

// Submitter requests scoring from the remote quiz service.
type Submitter interface {
	Submit(ctx context.Context, autoSubmit bool) (*ScoredResult, error)
}

// Finalizer performs the terminal transition: flush answers, request scoring,
// and release the security monitor. It caches the result so a second call —
// e.g. a race between a user click and the auto-submit timer — is a no-op
// returning the same ScoredResult without a second scoring call.
type Finalizer struct {
	mu        sync.Mutex
	persister *Persister
	submitter Submitter
	monitor   Monitor
	log       zerolog.Logger
	result    *ScoredResult
}

// NewFinalizer creates a Finalizer.
func NewFinalizer(persister *Persister, submitter Submitter, monitor Monitor, log zerolog.Logger) *Finalizer {
	return &Finalizer{
		persister: persister,
		submitter: submitter,
		monitor:   monitor,
		log:       log.With().Str("component", "finalizer").Logger(),
	}
}

// Finalize flushes all answers, requests scoring, and on success stops the
// monitor and best-effort exits fullscreen. On scoring failure the monitor
// stays active — integrity monitoring continues until a submission succeeds —
// and the caller is expected to offer a retry.
func (f *Finalizer) Finalize(ctx context.Context, answers map[string]Answer, autoSubmit bool) (*ScoredResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result != nil {
		return f.result, nil
	}

	// Flush is best effort: unsynced answers are an accepted risk on timer
	// expiry, so a partial flush never blocks submission.
	if err := f.persister.FlushAll(ctx, answers); err != nil {
		f.log.Warn().Err(err).Msg("Answer flush incomplete, submitting anyway")
	}

	res, err := f.submitter.Submit(ctx, autoSubmit)
	if err != nil {
		return nil, fmt.Errorf("submit quiz: %w", err)
	}
	res.AutoSubmit = autoSubmit
	f.result = res

	f.monitor.Stop()
	if err := f.monitor.ExitFullscreen(); err != nil {
		f.log.Debug().Err(err).Msg("Exit fullscreen failed")
	}

	return res, nil
}

// Result returns the cached result, or nil if the session was never finalized.
func (f *Finalizer) Result() *ScoredResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}
