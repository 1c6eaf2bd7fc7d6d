package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/handler"
	"github.com/prepnest/tutor-backend/internal/middleware"
	"github.com/prepnest/tutor-backend/internal/response"
	"github.com/prepnest/tutor-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Student *handler.StudentHandler
	Quiz    *handler.QuizHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/register", handlers.Auth.StudentRegister)
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/teacher/login", handlers.Auth.TeacherLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/teacher/me", middleware.RequireTeacherJWT(authService), handlers.Auth.GetTeacherProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/lobby", handlers.Student.GetLobby)
		studentAPI.GET("/results", handlers.Student.GetMyResults)
		studentAPI.POST("/quizzes/:quiz_id/start", handlers.Student.StartQuiz)
		studentAPI.GET("/quizzes/:quiz_id/paper",
			middleware.CacheControl(60),
			handlers.Student.GetQuizPaper,
		)
		studentAPI.GET("/quizzes/:quiz_id/state", handlers.Student.GetQuizState)
		studentAPI.POST("/quizzes/:quiz_id/submit", handlers.Student.SubmitQuiz)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/quizzes/:quiz_id/stream", handlers.WS.QuizSessionStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		// Quiz set management
		teacherAPI.GET("/quizzes", handlers.Quiz.ListQuizzes)
		teacherAPI.POST("/quizzes", handlers.Quiz.CreateQuiz)
		teacherAPI.GET("/quizzes/:quiz_id", handlers.Quiz.GetQuiz)
		teacherAPI.PUT("/quizzes/:quiz_id", handlers.Quiz.UpdateQuiz)
		teacherAPI.DELETE("/quizzes/:quiz_id", handlers.Quiz.DeleteQuiz)
		teacherAPI.POST("/quizzes/:quiz_id/publish", handlers.Quiz.PublishQuiz)
		teacherAPI.POST("/quizzes/:quiz_id/archive", handlers.Quiz.ArchiveQuiz)
		teacherAPI.POST("/quizzes/:quiz_id/refresh-cache", handlers.Quiz.RefreshQuizCache)

		// Question management
		teacherAPI.GET("/quizzes/:quiz_id/questions", handlers.Quiz.ListQuestions)
		teacherAPI.POST("/quizzes/:quiz_id/questions", handlers.Quiz.AddQuestion)
		teacherAPI.PUT("/quizzes/:quiz_id/questions", handlers.Quiz.ReplaceQuestions)

		// Results and live monitoring
		teacherAPI.GET("/quizzes/:quiz_id/results", handlers.Quiz.GetQuizResults)
		teacherAPI.GET("/quizzes/:quiz_id/monitor", handlers.Monitor.MonitorQuizSSE)

		// Student session recovery
		teacherAPI.POST("/students/:student_id/reset-session", handlers.Auth.ResetStudentLogin)

		// System monitoring
		teacherAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
