package proctor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the explicit session state machine. COMPLETED is terminal.
type State string

const (
	StateLoading        State = "LOADING"
	StateInProgress     State = "IN_PROGRESS"
	StateGracePeriod    State = "GRACE_PERIOD"
	StateAutoSubmitting State = "AUTO_SUBMITTING"
	StateSubmitting     State = "SUBMITTING"
	StateCompleted      State = "COMPLETED"
)

const (
	// DefaultGraceSeconds is the bounded countdown during which a detected
	// violation can be self-corrected before auto-submission.
	DefaultGraceSeconds = 10

	// FallbackMinutesPerQuestion is used when a quiz has no configured
	// duration.
	FallbackMinutesPerQuestion = 2
)

// Question is the controller's view of a quiz question: identity and marks.
// The question set is immutable for the lifetime of a session.
type Question struct {
	ID    string
	Marks int
}

// Config fixes the immutable parameters of a session at creation.
type Config struct {
	SessionID       string
	Questions       []Question
	DurationMinutes int       // 0 → FallbackMinutesPerQuestion × question count
	GraceSeconds    int       // 0 → DefaultGraceSeconds
	StartedAt       time.Time // zero → clock.Now() at Start (resumed sessions pass the original start)
}

// Events are optional observer callbacks. They are invoked with the
// controller lock held and must not call back into the controller.
type Events struct {
	OnState          func(State)
	OnRemaining      func(seconds int)
	OnGraceRemaining func(seconds int)
	OnContentHidden  func(hidden bool)
	OnResult         func(res *ScoredResult)
}

// Controller owns the quiz session lifecycle: it drives the countdown,
// mediates between the security monitor and the finalizer, and is the single
// mutator of session state. All entry points are serialized behind one mutex,
// and one Tick source drives both the main and the grace countdown, so two
// timers can never race.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	clock     Clock
	monitor   Monitor
	persister *Persister
	finalizer *Finalizer
	events    Events
	log       zerolog.Logger

	state          State
	startedAt      time.Time
	duration       time.Duration
	graceSeconds   int
	graceRemaining int
	contentHidden  bool
	answers        map[string]Answer
	violations     []ViolationEvent
	submitFired    bool
}

// New builds a Controller. Fails with ErrNoQuestions if the quiz is empty;
// otherwise computes the effective duration and waits in LOADING until Start.
func New(cfg Config, clock Clock, monitor Monitor, store AnswerStore, submitter Submitter, events Events, log zerolog.Logger) (*Controller, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	minutes := cfg.DurationMinutes
	if minutes <= 0 {
		minutes = FallbackMinutesPerQuestion * len(cfg.Questions)
	}
	grace := cfg.GraceSeconds
	if grace <= 0 {
		grace = DefaultGraceSeconds
	}

	persister := NewPersister(store)
	c := &Controller{
		cfg:          cfg,
		clock:        clock,
		monitor:      monitor,
		persister:    persister,
		finalizer:    NewFinalizer(persister, submitter, monitor, log),
		events:       events,
		log:          log.With().Str("component", "session_controller").Str("session_id", cfg.SessionID).Logger(),
		state:        StateLoading,
		duration:     time.Duration(minutes) * time.Minute,
		graceSeconds: grace,
		answers:      make(map[string]Answer),
	}
	return c, nil
}

// Start begins monitoring and transitions LOADING → IN_PROGRESS.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLoading {
		return nil
	}

	if err := c.monitor.Start(c.handleViolation); err != nil {
		// Monitoring is best effort: an unsupported platform degrades to
		// zero violations rather than blocking the session.
		c.log.Warn().Err(err).Msg("Security monitor unavailable, continuing without it")
	}

	c.startedAt = c.cfg.StartedAt
	if c.startedAt.IsZero() {
		c.startedAt = c.clock.Now()
	}
	c.setStateLocked(StateInProgress)
	return nil
}

// Tick advances the session by one second of wall-clock observation. It is
// the single periodic trigger: it recomputes the main countdown from the
// clock and, while in grace, decrements the grace countdown. Repeated ticks
// after expiry never re-trigger submission.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateInProgress:
		rem := c.remainingLocked()
		c.emitRemaining(rem)
		if rem <= 0 {
			c.autoSubmitLocked(ctx)
		}

	case StateGracePeriod:
		// The main countdown keeps running during grace.
		rem := c.remainingLocked()
		c.emitRemaining(rem)
		if rem <= 0 {
			c.autoSubmitLocked(ctx)
			return
		}

		// Condition restored: discard the timer entirely. A fresh
		// violation re-arms at the full constant, never resumes.
		if c.monitor.IsFullscreen() {
			c.cancelGraceLocked()
			return
		}

		c.graceRemaining--
		if c.events.OnGraceRemaining != nil {
			c.events.OnGraceRemaining(c.graceRemaining)
		}
		if c.graceRemaining <= 0 {
			c.autoSubmitLocked(ctx)
		}

	default:
		// LOADING, SUBMITTING, AUTO_SUBMITTING, COMPLETED: nothing to drive.
	}
}

// RecordAnswer updates the local answer map. Allowed in IN_PROGRESS and
// GRACE_PERIOD only; a call in any other state — including COMPLETED — is a
// silent no-op. Blank or whitespace-only text unanswers the question.
// Returns whether the answer was recorded.
func (c *Controller) RecordAnswer(questionID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress && c.state != StateGracePeriod {
		return false
	}

	if isBlank(text) {
		delete(c.answers, questionID)
		return true
	}
	c.answers[questionID] = Answer{Text: text, At: c.clock.Now()}
	return true
}

// SaveAnswer records the answer locally and then pushes it through the
// persistence adapter. A remote failure leaves the answer recorded but
// unacknowledged; it never interrupts the timer.
func (c *Controller) SaveAnswer(ctx context.Context, questionID, text string) error {
	if !c.RecordAnswer(questionID, text) {
		return nil
	}
	if isBlank(text) {
		return nil
	}
	return c.persister.Save(ctx, questionID, text)
}

// CancelGrace disarms the grace timer when the monitored condition is
// restored and returns the session to IN_PROGRESS.
func (c *Controller) CancelGrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelGraceLocked()
}

// Submit is the user-initiated finalization. Calling it on a COMPLETED
// session returns the cached result without a second scoring call. On
// scoring failure the session stays SUBMITTING and the call may be retried.
func (c *Controller) Submit(ctx context.Context) (*ScoredResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCompleted:
		return c.finalizer.Result(), nil
	case StateLoading:
		return nil, ErrNotStarted
	case StateInProgress, StateGracePeriod, StateSubmitting:
		c.setStateLocked(StateSubmitting)
		return c.finalizeLocked(ctx, false)
	default: // AUTO_SUBMITTING: the timer path is already finalizing.
		return nil, nil
	}
}

// Shutdown releases monitoring for an abandoned session (client navigated
// away or the connection dropped before completion). Idempotent.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitor.Stop()
}

// ─── Accessors ──────────────────────────────────────────────────────

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the main countdown in seconds, clamped to ≥ 0.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoading {
		return int(c.duration.Seconds())
	}
	return c.remainingLocked()
}

// GraceRemaining returns the grace countdown, or 0 when not in grace.
func (c *Controller) GraceRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateGracePeriod {
		return 0
	}
	return c.graceRemaining
}

// ContentHidden reports whether question content is hidden (during grace).
func (c *Controller) ContentHidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentHidden
}

// AnsweredCount returns the number of non-blank answers.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.answers {
		if !isBlank(a.Text) {
			n++
		}
	}
	return n
}

// Answers returns a copy of the local answer map.
func (c *Controller) Answers() map[string]Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Answer, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// IsSaved reports whether the question's latest answer was acknowledged by
// the persistence adapter.
func (c *Controller) IsSaved(questionID string) bool {
	return c.persister.IsSaved(questionID)
}

// Violations returns a copy of the append-only violation log.
func (c *Controller) Violations() []ViolationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ViolationEvent, len(c.violations))
	copy(out, c.violations)
	return out
}

// Result returns the cached scored result, or nil before completion.
func (c *Controller) Result() *ScoredResult {
	return c.finalizer.Result()
}

// ─── Internal ───────────────────────────────────────────────────────

// handleViolation is the monitor callback. Violations are appended while the
// session is live; a fullscreen exit (re-)arms the grace timer at the full
// constant and hides question content. No events are processed once the
// session is COMPLETED.
func (c *Controller) handleViolation(ev ViolationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return
	}

	c.violations = append(c.violations, ev)
	c.log.Debug().
		Str("type", string(ev.Type)).
		Int("total", len(c.violations)).
		Msg("Violation recorded")

	if ev.Type != ViolationFullscreenExit {
		return
	}
	if c.state != StateInProgress && c.state != StateGracePeriod {
		return
	}

	c.graceRemaining = c.graceSeconds
	if !c.contentHidden {
		c.contentHidden = true
		if c.events.OnContentHidden != nil {
			c.events.OnContentHidden(true)
		}
	}
	if c.state != StateGracePeriod {
		c.setStateLocked(StateGracePeriod)
	}
}

func (c *Controller) cancelGraceLocked() {
	if c.state != StateGracePeriod {
		return
	}
	c.graceRemaining = 0
	c.contentHidden = false
	if c.events.OnContentHidden != nil {
		c.events.OnContentHidden(false)
	}
	c.setStateLocked(StateInProgress)
}

// autoSubmitLocked fires the system-initiated finalization exactly once.
func (c *Controller) autoSubmitLocked(ctx context.Context) {
	if c.submitFired {
		return
	}
	c.submitFired = true

	c.setStateLocked(StateAutoSubmitting)
	if _, err := c.finalizeLocked(ctx, true); err != nil {
		c.log.Error().Err(err).Msg("Auto-submit failed, awaiting manual retry")
	}
}

func (c *Controller) finalizeLocked(ctx context.Context, autoSubmit bool) (*ScoredResult, error) {
	res, err := c.finalizer.Finalize(ctx, c.answers, autoSubmit)
	if err != nil {
		// Stay retryable; the monitor remains active until a submission
		// actually succeeds.
		c.setStateLocked(StateSubmitting)
		return nil, err
	}

	c.graceRemaining = 0
	if c.contentHidden {
		c.contentHidden = false
		if c.events.OnContentHidden != nil {
			c.events.OnContentHidden(false)
		}
	}
	c.setStateLocked(StateCompleted)
	if c.events.OnResult != nil {
		c.events.OnResult(res)
	}
	return res, nil
}

// remainingLocked derives the countdown from wall-clock elapsed time, never
// from a decrementing counter: remaining = max(0, duration − (now − start)).
func (c *Controller) remainingLocked() int {
	left := c.duration - c.clock.Now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.events.OnState != nil {
		c.events.OnState(s)
	}
}

func (c *Controller) emitRemaining(rem int) {
	if c.events.OnRemaining != nil {
		c.events.OnRemaining(rem)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
