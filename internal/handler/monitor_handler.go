package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/middleware"
	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/prepnest/tutor-backend/internal/response"
	"github.com/prepnest/tutor-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live quiz activity to the authoring teacher over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	quizService    *service.QuizService
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	quizService *service.QuizService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		quizService:    quizService,
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorQuizSSE godoc
// GET /api/v1/teacher/quizzes/:quiz_id/monitor
// Live event feed: an initial roster snapshot, Redis Pub/Sub violation events
// forwarded as they happen, and periodic progress refreshes.
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
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
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	totalQuestions := quiz.QuestionCount

	h.sendInitialSnapshot(c, reqCtx, quizID, quiz, totalQuestions)

	channelName := config.CacheKey.QuizMonitorChannel(quizID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Track whether any student has joined so we can skip empty refreshes
	hasStudents := false

	h.log.Info().Str("quiz_id", quizID.String()).Msg("Teacher attached to live monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("quiz_id", quizID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			// A violation event proves at least one student is active
			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue // no point querying if nobody has joined
			}
			h.sendRefresh(c, reqCtx, quizID, totalQuestions)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers data and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(
	c *gin.Context,
	ctx context.Context,
	quizID uuid.UUID,
	quiz *model.QuizSet,
	totalQuestions int,
) {
	results, _, _ := h.sessionService.GetQuizResults(ctx, quizID, 1, 1000)

	totalJoined := len(results)
	totalInProgress := 0
	totalCompleted := 0

	studentsSnapshot := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		switch res.Status {
		case model.SessionStatusInProgress:
			totalInProgress++
		case model.SessionStatusCompleted:
			totalCompleted++
		}

		var score float64
		if res.Score != nil {
			score = *res.Score
		}

		studentsSnapshot = append(studentsSnapshot, map[string]interface{}{
			"student_id":      res.StudentID,
			"name":            res.Name,
			"grade_level":     res.GradeLevel,
			"status":          res.Status,
			"score":           score,
			"started_at":      res.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(0),
			"total_questions": totalQuestions,
		})
	}

	// Fetch counts with a timeout so a slow query doesn't block the connection
	var initialTotalViolations int64
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, quizID); err == nil {
		initialTotalViolations = progress.TotalViolations
		for i, s := range studentsSnapshot {
			sid, ok := s["student_id"].(int)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[sid]; found {
				studentsSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[sid]; found {
				studentsSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"quiz": map[string]interface{}{
				"id":              quizID.String(),
				"title":           quiz.Title,
				"duration":        quiz.DurationMinutes,
				"total_questions": totalQuestions,
			},
			"stats": map[string]interface{}{
				"total_joined":      totalJoined,
				"total_in_progress": totalInProgress,
				"total_completed":   totalCompleted,
				"total_violations":  initialTotalViolations,
			},
			"students": studentsSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls DB+Redis for current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, quizID uuid.UUID, totalQuestions int) {
	// Scoped timeout prevents a slow query from stalling the SSE loop
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, quizID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	// Single-pass merge: iterate answered counts, decorate with violation counts
	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for sid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid], // 0 if missing
		})
		delete(progress.ViolationCounts, sid) // mark as handled
	}

	// Remaining violation-only students (already submitted, not in-progress)
	for sid, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         progressData,
	})
	c.Writer.Flush()
}
