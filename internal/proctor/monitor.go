package proctor

import (
	"sync"
	"time"
)

// ViolationType classifies an observed deviation from required quiz conditions.
type ViolationType string

const (
	ViolationFullscreenExit   ViolationType = "fullscreen-exit"
	ViolationTabBlur          ViolationType = "tab-blur"
	ViolationVisibilityHidden ViolationType = "visibility-hidden"
	ViolationCopyAttempt      ViolationType = "copy-attempt"
	ViolationPasteAttempt     ViolationType = "paste-attempt"
)

// ViolationEvent is a single observed violation. Events are append-only;
// per-session counts never decrease.
type ViolationEvent struct {
	Type   ViolationType `json:"type"`
	At     time.Time     `json:"at"`
	Detail string        `json:"detail,omitempty"`
}

// Monitor observes quiz integrity conditions and reports each deviation as a
// discrete ViolationEvent to the callback registered via Start. A Monitor
// never decides consequences and never mutates session state.
type Monitor interface {
	// Start begins observing. Idempotent if called while already active.
	Start(onViolation func(ViolationEvent)) error
	// Stop detaches the callback. Safe to call on every exit path,
	// including repeatedly.
	Stop()
	// IsFullscreen reports the last known fullscreen state as a
	// continuously queryable value, not just an event.
	IsFullscreen() bool
	// ExitFullscreen asks the client to leave fullscreen. Best-effort
	// cleanup after submission; failures are logged, never propagated.
	ExitFullscreen() error
}

// EventMonitor is a Monitor fed externally with client-reported events,
// typically by the WebSocket handler that owns the connection. It carries no
// platform bindings of its own, which also makes the controller testable
// without a browser.
type EventMonitor struct {
	mu         sync.Mutex
	active     bool
	fullscreen bool
	handler    func(ViolationEvent)

	// exitFn, when set, is invoked by ExitFullscreen to signal the client
	// (e.g. a WebSocket directive). Optional.
	exitFn func() error
}

// NewEventMonitor creates an EventMonitor. The session is assumed to begin
// in fullscreen; the first client report corrects this if not.
func NewEventMonitor() *EventMonitor {
	return &EventMonitor{fullscreen: true}
}

// SetExitFunc registers the callback used by ExitFullscreen.
func (m *EventMonitor) SetExitFunc(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitFn = fn
}

// Start registers the violation callback. Calling Start while active is a no-op.
func (m *EventMonitor) Start(onViolation func(ViolationEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return nil
	}
	m.active = true
	m.handler = onViolation
	return nil
}

// Stop detaches the callback. Events reported after Stop are dropped.
func (m *EventMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.handler = nil
}

// Report feeds a client-observed violation into the monitor. Dropped if the
// monitor is not active.
func (m *EventMonitor) Report(ev ViolationEvent) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	if ev.Type == ViolationFullscreenExit {
		m.fullscreen = false
	}
	handler := m.handler
	m.mu.Unlock()

	// Invoke outside the lock: the handler takes the controller mutex and
	// may call back into IsFullscreen.
	if handler != nil {
		handler(ev)
	}
}

// SetFullscreen records a client-reported fullscreen state change.
func (m *EventMonitor) SetFullscreen(fullscreen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullscreen = fullscreen
}

// IsFullscreen reports the last known fullscreen state.
func (m *EventMonitor) IsFullscreen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

// ExitFullscreen signals the client to leave fullscreen, if a callback is set.
func (m *EventMonitor) ExitFullscreen() error {
	m.mu.Lock()
	fn := m.exitFn
	m.fullscreen = false
	m.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn()
}

// NoopMonitor is the degradation path for platforms that lack the required
// observation APIs: it reports zero violations and never errors. Integrity
// monitoring is best effort, not a hard gate.
type NoopMonitor struct{}

func (NoopMonitor) Start(func(ViolationEvent)) error { return nil }
func (NoopMonitor) Stop()                            {}

// IsFullscreen reports true: an unsupported platform is never treated as
// being in violation.
func (NoopMonitor) IsFullscreen() bool    { return true }
func (NoopMonitor) ExitFullscreen() error { return nil }
