package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeStore records saves and can be told to fail specific questions.
type fakeStore struct {
	mu     sync.Mutex
	saved  map[string]string
	failOn map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]string), failOn: make(map[string]bool)}
}

func (s *fakeStore) SaveAnswer(_ context.Context, questionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[questionID] {
		return errors.New("storage unavailable")
	}
	s.saved[questionID] = text
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// fakeSubmitter counts scoring calls and can be made to fail.
type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeSubmitter) Submit(_ context.Context, autoSubmit bool) (*ScoredResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("scoring endpoint unreachable")
	}
	return &ScoredResult{SessionID: "sess-1", Score: 42, TotalMarks: 100, AutoSubmit: autoSubmit}, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testRig struct {
	ctrl      *Controller
	clock     *fakeClock
	monitor   *EventMonitor
	store     *fakeStore
	submitter *fakeSubmitter
}

func newTestRig(t *testing.T, questions, durationMinutes int) *testRig {
	t.Helper()

	qs := make([]Question, questions)
	for i := range qs {
		qs[i] = Question{ID: fmt.Sprintf("q%d", i+1), Marks: 1}
	}

	rig := &testRig{
		clock:     newFakeClock(),
		monitor:   NewEventMonitor(),
		store:     newFakeStore(),
		submitter: &fakeSubmitter{},
	}

	ctrl, err := New(Config{
		SessionID:       "sess-1",
		Questions:       qs,
		DurationMinutes: durationMinutes,
	}, rig.clock, rig.monitor, rig.store, rig.submitter, Events{}, zerolog.Nop())
	require.NoError(t, err)

	rig.ctrl = ctrl
	require.NoError(t, ctrl.Start())
	return rig
}

// tickSeconds advances the clock one second at a time, ticking after each.
func (r *testRig) tickSeconds(n int) {
	for i := 0; i < n; i++ {
		r.clock.Advance(time.Second)
		r.ctrl.Tick(context.Background())
	}
}

func TestNew_NoQuestions(t *testing.T) {
	_, err := New(Config{SessionID: "s"}, newFakeClock(), NewEventMonitor(), newFakeStore(), &fakeSubmitter{}, Events{}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNoQuestions)
}

func TestNew_DurationFallback(t *testing.T) {
	rig := newTestRig(t, 5, 0)
	// 2 minutes per question when no duration is configured.
	assert.Equal(t, 600, rig.ctrl.Remaining())
}

func TestRemaining_NeverNegativeNeverIncreases(t *testing.T) {
	rig := newTestRig(t, 2, 1) // 60s

	prev := rig.ctrl.Remaining()
	for i := 0; i < 90; i++ {
		rig.tickSeconds(1)
		rem := rig.ctrl.Remaining()
		assert.GreaterOrEqual(t, rem, 0)
		assert.LessOrEqual(t, rem, prev)
		prev = rem
	}
	assert.Equal(t, 0, rig.ctrl.Remaining())
}

func TestRemaining_WallClockNotCounter(t *testing.T) {
	rig := newTestRig(t, 2, 10) // 600s

	// Simulate tick throttling: 5 minutes pass with a single tick.
	rig.clock.Advance(5 * time.Minute)
	rig.ctrl.Tick(context.Background())
	assert.Equal(t, 300, rig.ctrl.Remaining())
}

func TestAutoSubmit_OnTimeout(t *testing.T) {
	rig := newTestRig(t, 5, 5) // 300s

	rig.tickSeconds(295)
	assert.Equal(t, StateInProgress, rig.ctrl.State())

	rig.tickSeconds(5)
	assert.Equal(t, StateCompleted, rig.ctrl.State())
	require.NotNil(t, rig.ctrl.Result())
	assert.True(t, rig.ctrl.Result().AutoSubmit)
}

func TestAutoSubmit_FiresExactlyOnce(t *testing.T) {
	rig := newTestRig(t, 2, 1)

	// Keep ticking well past expiry.
	rig.tickSeconds(120)
	assert.Equal(t, StateCompleted, rig.ctrl.State())
	assert.Equal(t, 1, rig.submitter.callCount())
}

func TestSubmit_IdempotentAfterCompletion(t *testing.T) {
	rig := newTestRig(t, 2, 5)

	first, err := rig.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, StateCompleted, rig.ctrl.State())

	second, err := rig.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, rig.submitter.callCount())
}

func TestGracePeriod_RestoreBeforeExpiry(t *testing.T) {
	rig := newTestRig(t, 5, 5)

	rig.ctrl.RecordAnswer("q1", "answer one")
	answersBefore := rig.ctrl.Answers()

	rig.tickSeconds(50)
	rig.monitor.Report(ViolationEvent{Type: ViolationFullscreenExit, At: rig.clock.Now()})
	assert.Equal(t, StateGracePeriod, rig.ctrl.State())
	assert.True(t, rig.ctrl.ContentHidden())

	// Fullscreen restored 5s later: the grace timer is discarded.
	rig.tickSeconds(4)
	rig.monitor.SetFullscreen(true)
	rig.tickSeconds(1)

	assert.Equal(t, StateInProgress, rig.ctrl.State())
	assert.False(t, rig.ctrl.ContentHidden())
	assert.Equal(t, 0, rig.ctrl.GraceRemaining())
	assert.Equal(t, 0, rig.submitter.callCount())

	// Zero net state change to answers.
	assert.Equal(t, answersBefore, rig.ctrl.Answers())
}

func TestGracePeriod_ExpiryAutoSubmits(t *testing.T) {
	rig := newTestRig(t, 5, 5)

	rig.tickSeconds(50)
	rig.monitor.Report(ViolationEvent{Type: ViolationFullscreenExit, At: rig.clock.Now()})
	require.Equal(t, StateGracePeriod, rig.ctrl.State())

	// 10 seconds with no restoration.
	rig.tickSeconds(10)

	assert.Equal(t, StateCompleted, rig.ctrl.State())
	require.NotNil(t, rig.ctrl.Result())
	assert.True(t, rig.ctrl.Result().AutoSubmit)
	assert.Equal(t, 1, rig.submitter.callCount())
}

func TestGracePeriod_FreshViolationRearmsFully(t *testing.T) {
	rig := newTestRig(t, 5, 5)

	rig.monitor.Report(ViolationEvent{Type: ViolationFullscreenExit, At: rig.clock.Now()})
	rig.tickSeconds(6)
	assert.Equal(t, 4, rig.ctrl.GraceRemaining())

	// A second exit re-arms at the full constant, not the residue.
	rig.monitor.Report(ViolationEvent{Type: ViolationFullscreenExit, At: rig.clock.Now()})
	assert.Equal(t, DefaultGraceSeconds, rig.ctrl.GraceRemaining())
}

func TestViolation_NonFullscreenDoesNotChangeState(t *testing.T) {
	rig := newTestRig(t, 3, 5)

	rig.monitor.Report(ViolationEvent{Type: ViolationTabBlur, At: rig.clock.Now()})
	rig.monitor.Report(ViolationEvent{Type: ViolationCopyAttempt, At: rig.clock.Now()})

	assert.Equal(t, StateInProgress, rig.ctrl.State())
	assert.Len(t, rig.ctrl.Violations(), 2)
}

func TestViolation_IgnoredAfterCompletion(t *testing.T) {
	rig := newTestRig(t, 3, 5)

	_, err := rig.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, rig.ctrl.State())

	// The finalizer stopped the monitor, so this report is dropped.
	rig.monitor.Report(ViolationEvent{Type: ViolationFullscreenExit, At: rig.clock.Now()})
	assert.Empty(t, rig.ctrl.Violations())
	assert.Equal(t, StateCompleted, rig.ctrl.State())
}

func TestRecordAnswer_BlankCountsAsUnanswered(t *testing.T) {
	rig := newTestRig(t, 3, 5)

	rig.ctrl.RecordAnswer("q1", "some work shown")
	rig.ctrl.RecordAnswer("q2", "   \t\n")
	assert.Equal(t, 1, rig.ctrl.AnsweredCount())

	// Blanking an answered question unanswers it.
	rig.ctrl.RecordAnswer("q1", "  ")
	assert.Equal(t, 0, rig.ctrl.AnsweredCount())
}

func TestRecordAnswer_NoOpWhenCompleted(t *testing.T) {
	rig := newTestRig(t, 3, 5)

	_, err := rig.ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.False(t, rig.ctrl.RecordAnswer("q1", "too late"))
	assert.Equal(t, 0, rig.ctrl.AnsweredCount())
}

func TestSaveAnswer_TracksAcknowledgment(t *testing.T) {
	rig := newTestRig(t, 3, 5)

	require.NoError(t, rig.ctrl.SaveAnswer(context.Background(), "q1", "first"))
	assert.True(t, rig.ctrl.IsSaved("q1"))

	rig.store.failOn["q2"] = true
	err := rig.ctrl.SaveAnswer(context.Background(), "q2", "second")
	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "q2", se.QuestionID)
	assert.False(t, rig.ctrl.IsSaved("q2"))

	// The answer is still recorded locally despite the failed save.
	assert.Equal(t, 2, rig.ctrl.AnsweredCount())
}

func TestSubmit_FailureStaysRetryable(t *testing.T) {
	rig := newTestRig(t, 3, 5)
	rig.submitter.fail = true

	_, err := rig.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateSubmitting, rig.ctrl.State())

	// Monitoring continues until a submission succeeds.
	rig.monitor.Report(ViolationEvent{Type: ViolationTabBlur, At: rig.clock.Now()})
	assert.Len(t, rig.ctrl.Violations(), 1)

	rig.submitter.fail = false
	res, err := rig.ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StateCompleted, rig.ctrl.State())
}

func TestStateSequence_Events(t *testing.T) {
	var states []State

	qs := []Question{{ID: "q1"}, {ID: "q2"}}
	clock := newFakeClock()
	monitor := NewEventMonitor()
	ctrl, err := New(Config{SessionID: "s", Questions: qs, DurationMinutes: 1},
		clock, monitor, newFakeStore(), &fakeSubmitter{},
		Events{OnState: func(s State) { states = append(states, s) }},
		zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())

	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		ctrl.Tick(context.Background())
	}

	assert.Equal(t, []State{StateInProgress, StateAutoSubmitting, StateCompleted}, states)
}
