package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave   Action = "autosave"
	ActionSubmit     Action = "submit"
	ActionViolation  Action = "violation"
	ActionFullscreen Action = "fullscreen"
	ActionPing       Action = "ping"
)

// RequestPayload is the single client message shape. Which fields matter
// depends on the action.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`

	// violation
	EventType string `json:"event_type,omitempty"`
	EventData string `json:"event_data,omitempty"`

	// fullscreen: true when the client re-enters fullscreen.
	Fullscreen bool `json:"fullscreen,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventGraded  Event = "graded"
	EventState   Event = "state"
	EventTime    Event = "time"
	EventGrace   Event = "grace"
	EventPong    Event = "pong"

	// EventHidden tells the client to mask or reveal the quiz content.
	EventHidden Event = "hidden"

	// EventFullscreen asks the client to change its fullscreen state.
	EventFullscreen Event = "fullscreen"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type GradedResponse struct {
	Event      Event   `json:"event"`
	Status     string  `json:"status"`
	Score      float64 `json:"score"`
	TotalMarks int     `json:"total_marks"`
	AutoSubmit bool    `json:"auto_submit"`
}

// StateResponse announces session state transitions, including entry into and
// out of the grace period.
type StateResponse struct {
	Event Event  `json:"event"`
	State string `json:"state"`
}

// TimeResponse carries the authoritative remaining seconds, pushed once per tick.
type TimeResponse struct {
	Event     Event   `json:"event"`
	Remaining float64 `json:"remaining"`
}

// GraceResponse carries the grace countdown while content is hidden.
type GraceResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

// HiddenResponse carries the content-hidden flag. Content is masked while a
// grace countdown runs and revealed when the student recovers.
type HiddenResponse struct {
	Event  Event `json:"event"`
	Hidden bool  `json:"hidden"`
}

// FullscreenResponse tells the client to enter or leave fullscreen.
type FullscreenResponse struct {
	Event  Event `json:"event"`
	Active bool  `json:"active"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
