package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prepnest/tutor-backend/internal/middleware"
	"github.com/prepnest/tutor-backend/internal/proctor"
	"github.com/prepnest/tutor-backend/internal/service"
	ws "github.com/prepnest/tutor-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// validViolationTypes are the browser-reported integrity events a client may
// submit over the stream.
var validViolationTypes = map[string]proctor.ViolationType{
	string(proctor.ViolationFullscreenExit):   proctor.ViolationFullscreenExit,
	string(proctor.ViolationTabBlur):          proctor.ViolationTabBlur,
	string(proctor.ViolationVisibilityHidden): proctor.ViolationVisibilityHidden,
	string(proctor.ViolationCopyAttempt):      proctor.ViolationCopyAttempt,
	string(proctor.ViolationPasteAttempt):     proctor.ViolationPasteAttempt,
}

// WSHandler streams quiz sessions over WebSocket. Each connection hosts one
// session controller: a single one-second ticker drives the countdown server
// side, browser events feed the security monitor, and submission is graded
// through the session service.
type WSHandler struct {
	sessionService *service.SessionService
	quizService    *service.QuizService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, quizService *service.QuizService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		quizService:    quizService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// sessionConn bundles the per-connection state: the controller, its monitor,
// and the outbound event channel consumed by the single writer goroutine.
type sessionConn struct {
	controller *proctor.Controller
	monitor    *proctor.EventMonitor
	out        chan interface{}
	quizID     uuid.UUID
	studentID  int
	log        zerolog.Logger
}

// send queues an outbound event without blocking the controller. A saturated
// channel drops the event; the client resyncs from the next tick.
func (sc *sessionConn) send(v interface{}) {
	select {
	case sc.out <- v:
	default:
	}
}

// QuizSessionStream godoc
// WS /ws/v1/student/quizzes/:quiz_id/stream
// Upgrades to WebSocket for real-time autosave, violation reporting, the
// authoritative countdown, and instant grading.
func (h *WSHandler) QuizSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	ctx := context.Background()

	if err := h.sessionService.VerifyActiveSession(ctx, quizID, studentID); err != nil {
		ws.WriteError(conn, "no active session for this quiz")
		return
	}

	sc, err := h.buildSessionConn(ctx, quizID, studentID)
	if err != nil {
		h.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Session controller setup failed")
		ws.WriteError(conn, "session setup failed")
		return
	}

	sc.log.Info().Msg("Student connected")

	// Single writer goroutine: gorilla connections allow one concurrent writer.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for v := range sc.out {
			if err := ws.WriteTyped(conn, v); err != nil {
				return
			}
		}
	}()

	if err := sc.controller.Start(); err != nil {
		sc.log.Error().Err(err).Msg("Controller start failed")
		ws.WriteError(conn, "session start failed")
		return
	}
	h.preloadAnswers(ctx, sc)

	// One ticker per connection drives both the main and grace countdowns.
	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickerDone:
				return
			case <-ticker.C:
				sc.controller.Tick(ctx)
			}
		}
	}()

	h.readLoop(ctx, conn, sc)

	close(tickerDone)
	sc.controller.Shutdown()
	close(sc.out)
	<-writerDone
	sc.log.Info().Msg("Student disconnected")
}

// buildSessionConn wires a controller from the cached quiz payload and the
// student's session row.
func (h *WSHandler) buildSessionConn(ctx context.Context, quizID uuid.UUID, studentID int) (*sessionConn, error) {
	payload, err := h.quizService.GetQuizPayload(ctx, quizID)
	if err != nil {
		return nil, err
	}

	session, err := h.sessionService.GetSession(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}

	questions := make([]proctor.Question, len(payload.Questions))
	for i, q := range payload.Questions {
		questions[i] = proctor.Question{ID: q.ID.String(), Marks: q.Marks}
	}

	sc := &sessionConn{
		monitor:   proctor.NewEventMonitor(),
		out:       make(chan interface{}, 64),
		quizID:    quizID,
		studentID: studentID,
		log: h.log.With().
			Int("student_id", studentID).
			Str("quiz_id", quizID.String()).
			Logger(),
	}

	sc.monitor.SetExitFunc(func() error {
		sc.send(ws.FullscreenResponse{Event: ws.EventFullscreen, Active: false})
		return nil
	})

	events := proctor.Events{
		OnState: func(state proctor.State) {
			sc.send(ws.StateResponse{Event: ws.EventState, State: string(state)})
		},
		OnRemaining: func(seconds int) {
			sc.send(ws.TimeResponse{Event: ws.EventTime, Remaining: float64(seconds)})
		},
		OnGraceRemaining: func(seconds int) {
			sc.send(ws.GraceResponse{Event: ws.EventGrace, Remaining: seconds})
		},
		OnContentHidden: func(hidden bool) {
			sc.send(ws.HiddenResponse{Event: ws.EventHidden, Hidden: hidden})
		},
		OnResult: func(res *proctor.ScoredResult) {
			sc.send(ws.GradedResponse{
				Event:      ws.EventGraded,
				Status:     "completed",
				Score:      res.Score,
				TotalMarks: res.TotalMarks,
				AutoSubmit: res.AutoSubmit,
			})
		},
	}

	controller, err := proctor.New(proctor.Config{
		SessionID:       session.ID.String(),
		Questions:       questions,
		DurationMinutes: session.DurationMinutes,
		StartedAt:       session.StartedAt,
	}, proctor.SystemClock{}, sc.monitor, &answerStoreAdapter{h.sessionService, quizID, studentID},
		&submitterAdapter{h.sessionService, quizID, studentID}, events, sc.log)
	if err != nil {
		return nil, err
	}
	sc.controller = controller
	return sc, nil
}

// preloadAnswers seeds the controller with autosaved answers so a resumed
// session reports correct answered counts.
func (h *WSHandler) preloadAnswers(ctx context.Context, sc *sessionConn) {
	state, err := h.sessionService.GetSessionState(ctx, sc.quizID, sc.studentID)
	if err != nil {
		sc.log.Warn().Err(err).Msg("Could not preload autosaved answers")
		return
	}
	for questionID, answer := range state.AutosavedAnswers {
		sc.controller.RecordAnswer(questionID, answer)
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sc *sessionConn) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				sc.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, sc, &msg)
		case ws.ActionViolation:
			h.handleViolation(ctx, sc, &msg)
		case ws.ActionFullscreen:
			h.handleFullscreen(ctx, sc, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, sc)
		case ws.ActionPing:
			sc.send(ws.PongResponse{Event: ws.EventPong})
		default:
			sc.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

// handleAutosave records the answer on the controller and pushes it through
// the persistence path. A blank answer clears the question.
func (h *WSHandler) handleAutosave(ctx context.Context, sc *sessionConn, msg *ws.RequestPayload) {
	if msg.QID == "" {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "q_id is required"})
		return
	}
	if _, err := uuid.Parse(msg.QID); err != nil {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}

	if err := sc.controller.SaveAnswer(ctx, msg.QID, msg.Answer); err != nil {
		sc.log.Error().Err(err).Str("q_id", msg.QID).Msg("Autosave failed")
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "save failed"})
		return
	}

	sc.send(ws.AutosaveResponse{Event: ws.EventSuccess, Status: "saved"})
}

// handleViolation feeds a browser-reported event into the security monitor
// and queues it for durable persistence.
func (h *WSHandler) handleViolation(ctx context.Context, sc *sessionConn, msg *ws.RequestPayload) {
	vtype, ok := validViolationTypes[msg.EventType]
	if !ok {
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown event_type: " + msg.EventType})
		return
	}

	sc.monitor.Report(proctor.ViolationEvent{
		Type:   vtype,
		At:     time.Now(),
		Detail: msg.EventData,
	})

	if err := h.sessionService.RecordViolation(ctx, sc.quizID, sc.studentID, msg.EventType, msg.EventData); err != nil {
		sc.log.Error().Err(err).Str("event_type", msg.EventType).Msg("Violation queue failed")
	}

	sc.send(ws.AutosaveResponse{Event: ws.EventSuccess, Status: "recorded"})
}

// handleFullscreen tracks the client's fullscreen transitions. Re-entering
// fullscreen cancels a pending grace countdown immediately rather than
// waiting for the next tick.
func (h *WSHandler) handleFullscreen(ctx context.Context, sc *sessionConn, msg *ws.RequestPayload) {
	if msg.Fullscreen {
		sc.monitor.SetFullscreen(true)
		sc.controller.CancelGrace()
		sc.send(ws.AutosaveResponse{Event: ws.EventSuccess, Status: "restored"})
		return
	}

	// Leaving fullscreen is a violation like any other.
	msg.EventType = string(proctor.ViolationFullscreenExit)
	h.handleViolation(ctx, sc, msg)
}

// handleSubmit finalizes the session through the controller. The graded
// result reaches the client via the OnResult event; resubmitting a completed
// session replays the cached result.
func (h *WSHandler) handleSubmit(ctx context.Context, sc *sessionConn) {
	if sc.controller.State() == proctor.StateCompleted {
		if res := sc.controller.Result(); res != nil {
			sc.send(ws.GradedResponse{
				Event:      ws.EventGraded,
				Status:     "completed",
				Score:      res.Score,
				TotalMarks: res.TotalMarks,
				AutoSubmit: res.AutoSubmit,
			})
		}
		return
	}

	if _, err := sc.controller.Submit(ctx); err != nil {
		sc.log.Error().Err(err).Msg("Submit failed")
		sc.send(ws.ErrorResponse{Event: ws.EventError, Error: "submission failed, please retry"})
	}
}

// ─── Proctor adapters ───────────────────────────────────────────────

// answerStoreAdapter persists controller answers through the session service.
type answerStoreAdapter struct {
	sessionService *service.SessionService
	quizID         uuid.UUID
	studentID      int
}

func (a *answerStoreAdapter) SaveAnswer(ctx context.Context, questionID, text string) error {
	return a.sessionService.SaveAnswer(ctx, a.quizID, a.studentID, questionID, text)
}

// submitterAdapter grades through the session service and converts the result.
type submitterAdapter struct {
	sessionService *service.SessionService
	quizID         uuid.UUID
	studentID      int
}

func (s *submitterAdapter) Submit(ctx context.Context, autoSubmit bool) (*proctor.ScoredResult, error) {
	scored, err := s.sessionService.Submit(ctx, s.quizID, s.studentID, autoSubmit)
	if err != nil {
		return nil, err
	}
	return &proctor.ScoredResult{
		SessionID:  scored.SessionID.String(),
		Score:      scored.Score,
		TotalMarks: scored.TotalMarks,
		AutoSubmit: autoSubmit,
	}, nil
}
