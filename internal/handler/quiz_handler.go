package handler

import (
	"encoding/json"
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

// QuizHandler handles teacher quiz authoring endpoints.
type QuizHandler struct {
	quizService    *service.QuizService
	sessionService *service.SessionService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, sessionService *service.SessionService) *QuizHandler {
	return &QuizHandler{
		quizService:    quizService,
		sessionService: sessionService,
	}
}

// ListQuizzes godoc
// GET /api/v1/teacher/quizzes
// Lists the teacher's own quiz sets with pagination.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	quizzes, pagination, err := h.quizService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"quizzes": quizzes}, pagination)
}

// CreateQuiz godoc
// POST /api/v1/teacher/quizzes
// Creates a new draft quiz set.
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz := &model.QuizSet{
		Title:           req.Title,
		Subject:         req.Subject,
		Year:            req.Year,
		AuthorID:        claims.UserID,
		DurationMinutes: req.DurationMinutes,
	}

	if err := h.quizService.Create(c.Request.Context(), quiz); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// GetQuiz godoc
// GET /api/v1/teacher/quizzes/:quiz_id
func (h *QuizHandler) GetQuiz(c *gin.Context) {
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

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if quiz.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// UpdateQuiz godoc
// PUT /api/v1/teacher/quizzes/:quiz_id
// Updates a draft quiz set's metadata.
func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
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

	var req model.UpdateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Title != "" {
		quiz.Title = req.Title
	}
	if req.Subject != "" {
		quiz.Subject = req.Subject
	}
	if req.Year != nil {
		quiz.Year = req.Year
	}
	if req.DurationMinutes != nil {
		quiz.DurationMinutes = *req.DurationMinutes
	}

	if err := h.quizService.Update(c.Request.Context(), claims.UserID, quiz); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// DeleteQuiz godoc
// DELETE /api/v1/teacher/quizzes/:quiz_id
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
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

	if err := h.quizService.Delete(c.Request.Context(), quizID, claims.UserID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PublishQuiz godoc
// POST /api/v1/teacher/quizzes/:quiz_id/publish
// Publishes a quiz: caches payload + answer key to Redis, changes status.
func (h *QuizHandler) PublishQuiz(c *gin.Context) {
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

	if err := h.quizService.Publish(c.Request.Context(), quizID, claims.UserID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "published"})
}

// ArchiveQuiz godoc
// POST /api/v1/teacher/quizzes/:quiz_id/archive
func (h *QuizHandler) ArchiveQuiz(c *gin.Context) {
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

	if err := h.quizService.Archive(c.Request.Context(), quizID, claims.UserID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "archived"})
}

// RefreshQuizCache godoc
// POST /api/v1/teacher/quizzes/:quiz_id/refresh-cache
// Re-warms the Redis payload + answer key for a published quiz.
func (h *QuizHandler) RefreshQuizCache(c *gin.Context) {
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

	if err := h.quizService.RefreshCache(c.Request.Context(), quizID, claims.UserID); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "refreshed"})
}

// ListQuestions godoc
// GET /api/v1/teacher/quizzes/:quiz_id/questions
// Returns a quiz set's questions including correct answers (author only).
func (h *QuizHandler) ListQuestions(c *gin.Context) {
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

	questions, err := h.quizService.ListQuestions(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		h.failQuizError(c, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/v1/teacher/quizzes/:quiz_id/questions
func (h *QuizHandler) AddQuestion(c *gin.Context) {
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

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question := questionFromRequest(quizID, &req)
	if err := h.quizService.AddQuestion(c.Request.Context(), claims.UserID, question); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ReplaceQuestions godoc
// PUT /api/v1/teacher/quizzes/:quiz_id/questions
// Replaces the entire question list of a draft quiz set atomically.
func (h *QuizHandler) ReplaceQuestions(c *gin.Context) {
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

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i := range req.Questions {
		questions[i] = *questionFromRequest(quizID, &req.Questions[i])
		if questions[i].OrderNum == 0 {
			questions[i].OrderNum = i + 1
		}
	}

	if err := h.quizService.ReplaceQuestions(c.Request.Context(), quizID, claims.UserID, questions); err != nil {
		h.failQuizError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": len(questions)})
}

// GetQuizResults godoc
// GET /api/v1/teacher/quizzes/:quiz_id/results
// Returns paginated student results for a quiz.
func (h *QuizHandler) GetQuizResults(c *gin.Context) {
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

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if quiz.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	results, total, err := h.sessionService.GetQuizResults(c.Request.Context(), quizID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

func questionFromRequest(quizID uuid.UUID, req *model.AddQuestionRequest) *model.Question {
	marks := req.Marks
	if marks == 0 {
		marks = 1
	}
	var options json.RawMessage
	if len(req.Options) > 0 {
		options = req.Options
	}
	return &model.Question{
		QuizID:        quizID,
		QuestionText:  req.QuestionText,
		QuestionType:  model.QuestionType(req.QuestionType),
		Options:       options,
		CorrectAnswer: req.CorrectAnswer,
		Marks:         marks,
		OrderNum:      req.OrderNum,
	}
}

// failQuizError maps quiz domain errors to API error codes.
func (h *QuizHandler) failQuizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotQuizAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
	case errors.Is(err, service.ErrQuizNotDraft):
		response.Fail(c, http.StatusBadRequest, response.ErrQuizNotDraft)
	case errors.Is(err, service.ErrQuizNotPublished):
		response.Fail(c, http.StatusBadRequest, response.ErrQuizNotPublished)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
