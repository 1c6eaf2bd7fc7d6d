package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepnest/tutor-backend/internal/middleware"
	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/prepnest/tutor-backend/internal/response"
	"github.com/prepnest/tutor-backend/internal/service"
	"github.com/prepnest/tutor-backend/internal/validator"
)

// StudentHandler handles student-facing endpoints (quiz lobby and taking).
type StudentHandler struct {
	sessionService *service.SessionService
	quizService    *service.QuizService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(sessionService *service.SessionService, quizService *service.QuizService) *StudentHandler {
	return &StudentHandler{
		sessionService: sessionService,
		quizService:    quizService,
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby?subject=physics&year=2023
// Returns published quizzes with the student's session status overlaid.
func (h *StudentHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var subject *model.Subject
	if raw := c.Query("subject"); raw != "" {
		s := model.Subject(raw)
		subject = &s
	}
	var year *int
	if raw := c.Query("year"); raw != "" {
		if y, err := strconv.Atoi(raw); err == nil {
			year = &y
		}
	}

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID, subject, year)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quizzes": lobby})
}

// StartQuiz godoc
// POST /api/v1/student/quizzes/:quiz_id/start
// Creates a session for the student (idempotent re-join).
func (h *StudentHandler) StartQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.StartSession(c.Request.Context(), quizID, claims.UserID, req.DurationMinutes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuizNotAvailable):
			response.Fail(c, http.StatusBadRequest, response.ErrQuizNotAvailable)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetQuizPaper godoc
// GET /api/v1/student/quizzes/:quiz_id/paper
// Returns the quiz payload from Redis (bypasses PostgreSQL).
// SECURITY: Requires an active session for this quiz — prevents IDOR.
func (h *StudentHandler) GetQuizPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Verify the student has an active session for this quiz so papers
	// cannot be downloaded without starting.
	if err := h.sessionService.VerifyActiveSession(c.Request.Context(), quizID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	payload, err := h.quizService.GetQuizPayload(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotPublished)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetQuizState godoc
// GET /api/v1/student/quizzes/:quiz_id/state
// Returns the canonical session state on page reload: autosaved answers and
// the authoritative remaining time. The client never trusts a local copy.
func (h *StudentHandler) GetQuizState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessionService.GetSessionState(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SubmitQuiz godoc
// POST /api/v1/student/quizzes/:quiz_id/submit
// REST fallback for submission when the WebSocket is unavailable. Idempotent:
// resubmitting a completed session returns the stored result.
func (h *StudentHandler) SubmitQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), quizID, claims.UserID, false)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrSubmitFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetMyResults godoc
// GET /api/v1/student/results
// Returns all of the student's quiz sessions, newest first.
func (h *StudentHandler) GetMyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListStudentSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if sessions == nil {
		sessions = []model.QuizSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}
