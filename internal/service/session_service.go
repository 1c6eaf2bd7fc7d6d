package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/prepnest/tutor-backend/internal/proctor"
	"github.com/prepnest/tutor-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Session domain errors.
var (
	ErrQuizNotAvailable = errors.New("quiz is not available")
	ErrNoActiveSession  = errors.New("no active session for this quiz")
	ErrSessionCompleted = errors.New("quiz session is already completed")
)

// SessionService handles quiz session business logic: starting, state
// recovery, answer autosave, and graded submission.
type SessionService struct {
	sessionRepo   *repository.SessionRepository
	quizRepo      *repository.QuizRepository
	answerRepo    *repository.AnswerRepository
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	quizRepo *repository.QuizRepository,
	answerRepo *repository.AnswerRepository,
	violationRepo *repository.ViolationRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo:   sessionRepo,
		quizRepo:      quizRepo,
		answerRepo:    answerRepo,
		violationRepo: violationRepo,
		rdb:           rdb,
		log:           log.With().Str("component", "session_service").Logger(),
	}
}

// LobbyQuiz represents a quiz set as displayed in the student lobby, with the
// student's session status overlaid.
type LobbyQuiz struct {
	model.QuizSet
	SessionStatus *model.SessionStatus `json:"session_status,omitempty"`
	Score         *float64             `json:"score,omitempty"`
}

// GetLobby returns published quiz sets with the student's existing sessions
// overlaid, optionally filtered by subject and year.
func (s *SessionService) GetLobby(ctx context.Context, studentID int, subject *model.Subject, year *int) ([]LobbyQuiz, error) {
	quizzes, err := s.quizRepo.ListPublished(ctx, subject, year)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	sessions, err := s.sessionRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessionMap := make(map[uuid.UUID]*model.QuizSession, len(sessions))
	for i := range sessions {
		sessionMap[sessions[i].QuizID] = &sessions[i]
	}

	lobby := make([]LobbyQuiz, 0, len(quizzes))
	for _, quiz := range quizzes {
		entry := LobbyQuiz{QuizSet: quiz}
		if sess, ok := sessionMap[quiz.ID]; ok {
			entry.SessionStatus = &sess.Status
			entry.Score = sess.Score
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// effectiveDuration resolves the duration for a new session: an explicit
// request override wins, then the quiz default, then two minutes per question.
func effectiveDuration(quiz *model.QuizSet, requested int) int {
	if requested > 0 {
		return requested
	}
	if quiz.DurationMinutes > 0 {
		return quiz.DurationMinutes
	}
	return quiz.QuestionCount * proctor.FallbackMinutesPerQuestion
}

// StartSession creates a session for the student, or returns the existing one
// (re-join after refresh or device switch). Start time and duration are cached
// in Redis so state reads stay off PostgreSQL.
func (s *SessionService) StartSession(ctx context.Context, quizID uuid.UUID, studentID int, requestedDuration int) (*model.QuizSession, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if quiz.Status != model.QuizStatusPublished {
		return nil, ErrQuizNotAvailable
	}
	if quiz.QuestionCount == 0 {
		return nil, ErrNoQuestions
	}

	existing, err := s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	// Re-join: ensure Redis has the timing keys and return the original
	// session untouched. The clock never resets.
	if existing != nil {
		s.cacheSessionTiming(ctx, existing)
		return existing, nil
	}

	session := &model.QuizSession{
		QuizID:          quizID,
		StudentID:       studentID,
		DurationMinutes: effectiveDuration(quiz, requestedDuration),
		Status:          model.SessionStatusInProgress,
		StartedAt:       time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start from another tab/device; converge on the winner.
			existing, fetchErr := s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			s.cacheSessionTiming(ctx, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.cacheSessionTiming(ctx, session)
	return session, nil
}

// cacheSessionTiming stores the session's start time and duration in Redis.
// Best-effort: the PostgreSQL row is the source of truth and GetSessionState
// self-heals on a cache miss.
func (s *SessionService) cacheSessionTiming(ctx context.Context, session *model.QuizSession) {
	quizID := session.QuizID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.SessionStartKey(quizID, session.StudentID), session.StartedAt.Unix(), 0)
	pipe.Set(ctx, config.CacheKey.SessionDurationKey(quizID, session.StudentID), strconv.Itoa(session.DurationMinutes), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).
			Str("quiz_id", quizID).
			Int("student_id", session.StudentID).
			Msg("Failed to cache session timing")
	}
}

// VerifyActiveSession checks that a student has an IN_PROGRESS session for the
// given quiz.
func (s *SessionService) VerifyActiveSession(ctx context.Context, quizID uuid.UUID, studentID int) error {
	sess, err := s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return ErrNoActiveSession
	}
	if sess.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}
	return nil
}

// GetSession returns a session row for the given quiz-student pair.
func (s *SessionService) GetSession(ctx context.Context, quizID uuid.UUID, studentID int) (*model.QuizSession, error) {
	return s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
}

// GetSessionState returns the canonical session state on reload: autosaved
// answers, the authoritative remaining time, and the violation count. Redis
// serves the hot path; PostgreSQL is the failover when a key was evicted.
func (s *SessionService) GetSessionState(ctx context.Context, quizID uuid.UUID, studentID int) (*model.SessionState, error) {
	sess, err := s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, ErrNoActiveSession
	}

	quizKey := quizID.String()

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(quizKey, studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}
	if len(answers) == 0 && sess.Status == model.SessionStatusInProgress {
		// The answer hash may have been evicted; rebuild from the persisted rows.
		persisted, dbErr := s.answerRepo.MapByQuizAndStudent(ctx, quizID, studentID)
		if dbErr == nil && len(persisted) > 0 {
			answers = persisted
			if s.rdb.HSet(ctx, config.CacheKey.StudentAnswersKey(quizKey, studentID), toAnyMap(persisted)).Err() == nil {
				s.log.Debug().Str("quiz_id", quizKey).Int("student_id", studentID).Msg("Answer hash self-healed from PostgreSQL")
			}
		}
	}
	if answers == nil {
		answers = map[string]string{}
	}

	startUnix, err := s.sessionStartUnix(ctx, quizKey, studentID, sess)
	if err != nil {
		return nil, err
	}

	duration, err := s.sessionDurationMinutes(ctx, quizKey, studentID, sess)
	if err != nil {
		return nil, err
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(duration) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}

	violations, err := s.violationRepo.CountByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		// Violation count is informational; don't fail the whole state read.
		s.log.Warn().Err(err).Str("quiz_id", quizKey).Msg("Violation count unavailable")
		violations = 0
	}

	return &model.SessionState{
		QuizID:           quizID,
		StudentID:        studentID,
		Status:           sess.Status,
		AutosavedAnswers: answers,
		RemainingSeconds: remaining.Seconds(),
		ViolationCount:   violations,
	}, nil
}

// sessionStartUnix reads the cached start time, falling back to the session
// row and self-healing the cache on a miss.
func (s *SessionService) sessionStartUnix(ctx context.Context, quizKey string, studentID int, sess *model.QuizSession) (int64, error) {
	startKey := config.CacheKey.SessionStartKey(quizKey, studentID)

	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		startUnix := sess.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
		return startUnix, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error getting start time: %w", err)
	}

	startUnix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return startUnix, nil
}

// sessionDurationMinutes reads the cached duration with the same failover.
func (s *SessionService) sessionDurationMinutes(ctx context.Context, quizKey string, studentID int, sess *model.QuizSession) (int, error) {
	durationKey := config.CacheKey.SessionDurationKey(quizKey, studentID)

	val, err := s.rdb.Get(ctx, durationKey).Result()
	if errors.Is(err, redis.Nil) {
		_ = s.rdb.Set(ctx, durationKey, strconv.Itoa(sess.DurationMinutes), 0)
		return sess.DurationMinutes, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error getting duration: %w", err)
	}

	duration, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format in cache: %w", err)
	}
	return duration, nil
}

// SaveAnswer writes an answer to the Redis hash and queues it for PostgreSQL
// persistence. A blank answer clears the question: blank counts as unanswered.
func (s *SessionService) SaveAnswer(ctx context.Context, quizID uuid.UUID, studentID int, questionID, answer string) error {
	if _, err := uuid.Parse(questionID); err != nil {
		return fmt.Errorf("invalid question id: %w", err)
	}

	answersKey := config.CacheKey.StudentAnswersKey(quizID.String(), studentID)

	if strings.TrimSpace(answer) == "" {
		if err := s.rdb.HDel(ctx, answersKey, questionID).Err(); err != nil {
			return fmt.Errorf("clear answer: %w", err)
		}
	} else {
		if err := s.rdb.HSet(ctx, answersKey, questionID, answer).Err(); err != nil {
			return fmt.Errorf("save answer: %w", err)
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"student_id":  studentID,
		"quiz_id":     quizID.String(),
		"question_id": questionID,
		"answer":      strings.TrimSpace(answer),
	})
	return s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err()
}

// RecordViolation queues an integrity violation for persistence and publishes
// it to the quiz's monitor channel for live teacher dashboards.
func (s *SessionService) RecordViolation(ctx context.Context, quizID uuid.UUID, studentID int, eventType, eventData string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"student_id": studentID,
		"quiz_id":    quizID.String(),
		"event_type": eventType,
		"event_data": eventData,
		"timestamp":  time.Now().Unix(),
	})

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}

	// Best-effort live fanout; the queue above is the durable path.
	_ = s.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(quizID.String()), payload).Err()
	return nil
}

// Submit grades the session in RAM against the cached answer key and queues
// the score for persistence. Idempotent: a completed session returns its
// stored result without regrading.
func (s *SessionService) Submit(ctx context.Context, quizID uuid.UUID, studentID int, autoSubmit bool) (*model.ScoredSession, error) {
	sess, err := s.sessionRepo.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		return nil, ErrNoActiveSession
	}

	if sess.Status == model.SessionStatusCompleted {
		result := &model.ScoredSession{
			SessionID:  sess.ID,
			QuizID:     quizID,
			StudentID:  studentID,
			AutoSubmit: autoSubmit,
			FinishedAt: sess.FinishedAt,
		}
		if sess.Score != nil {
			result.Score = *sess.Score
		}
		if sess.TotalMarks != nil {
			result.TotalMarks = *sess.TotalMarks
		}
		return result, nil
	}

	answerKey, err := s.rdb.HGetAll(ctx, config.CacheKey.QuizAnswerKey(quizID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(answerKey) == 0 {
		return nil, errors.New("answer key not found in cache")
	}

	studentAnswers, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(quizID.String(), studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get student answers: %w", err)
	}

	score, totalMarks := gradeAnswers(answerKey, studentAnswers)

	scorePayload, _ := json.Marshal(map[string]interface{}{
		"student_id":  studentID,
		"quiz_id":     quizID.String(),
		"score":       score,
		"total_marks": totalMarks,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, scorePayload).Err(); err != nil {
		return nil, fmt.Errorf("queue score: %w", err)
	}

	now := time.Now()
	s.log.Info().
		Str("quiz_id", quizID.String()).
		Int("student_id", studentID).
		Float64("score", score).
		Int("total_marks", totalMarks).
		Bool("auto_submit", autoSubmit).
		Msg("Session submitted and graded")

	return &model.ScoredSession{
		SessionID:  sess.ID,
		QuizID:     quizID,
		StudentID:  studentID,
		Score:      score,
		TotalMarks: totalMarks,
		AutoSubmit: autoSubmit,
		FinishedAt: &now,
	}, nil
}

// gradeAnswers computes the marks-weighted score in RAM. Comparison is
// whitespace-trimmed and case-insensitive, so short answers like " Paris "
// still match "paris".
func gradeAnswers(answerKey, studentAnswers map[string]string) (score float64, totalMarks int) {
	for questionID, raw := range answerKey {
		var entry answerKeyEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		totalMarks += entry.Marks

		given, ok := studentAnswers[questionID]
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(entry.Answer)) {
			score += float64(entry.Marks)
		}
	}
	return score, totalMarks
}

// ListStudentSessions returns all of a student's sessions, newest first.
func (s *SessionService) ListStudentSessions(ctx context.Context, studentID int) ([]model.QuizSession, error) {
	return s.sessionRepo.ListByStudent(ctx, studentID)
}

// GetQuizResults retrieves paginated results for a quiz, teacher view.
func (s *SessionService) GetQuizResults(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]repository.SessionResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.sessionRepo.ListByQuiz(ctx, quizID, page, perPage)
}

func toAnyMap(in map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
