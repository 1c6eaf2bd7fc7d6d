package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/prepnest/tutor-backend/internal/repository"
	"github.com/prepnest/tutor-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrNotQuizAuthor    = errors.New("not the author of this quiz")
	ErrNoQuestions      = errors.New("quiz has no questions, cannot publish/start")
	ErrQuizNotDraft     = errors.New("quiz status is not DRAFT")
	ErrQuizNotPublished = errors.New("quiz status is not PUBLISHED")
)

// answerKeyEntry is the Redis answer-key hash value: the correct answer plus
// the marks the question is worth, so grading stays marks-weighted.
type answerKeyEntry struct {
	Answer string `json:"a"`
	Marks  int    `json:"m"`
}

// QuizService handles quiz authoring business logic and Redis caching.
type QuizService struct {
	quizRepo     *repository.QuizRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizRepo:     quizRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetByID retrieves a quiz set by its UUID.
func (s *QuizService) GetByID(ctx context.Context, id uuid.UUID) (*model.QuizSet, error) {
	return s.quizRepo.GetByID(ctx, id)
}

// ListByAuthor retrieves a teacher's quiz sets with pagination.
func (s *QuizService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.QuizSet, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	quizzes, total, err := s.quizRepo.ListByAuthorPaginated(ctx, authorID, page, perPage)
	if err != nil {
		return nil, nil, err
	}

	if quizzes == nil {
		quizzes = []model.QuizSet{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return quizzes, pagination, nil
}

// ListPublished returns published quiz sets for the student lobby, optionally
// filtered by subject and year.
func (s *QuizService) ListPublished(ctx context.Context, subject *model.Subject, year *int) ([]model.QuizSet, error) {
	return s.quizRepo.ListPublished(ctx, subject, year)
}

// Create inserts a new quiz set as DRAFT.
func (s *QuizService) Create(ctx context.Context, quiz *model.QuizSet) error {
	quiz.Status = model.QuizStatusDraft
	return s.quizRepo.Create(ctx, quiz)
}

// Update modifies an existing draft quiz set.
func (s *QuizService) Update(ctx context.Context, authorID int, quiz *model.QuizSet) error {
	existing, err := s.quizRepo.GetByID(ctx, quiz.ID)
	if err != nil {
		return err
	}
	if existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.quizRepo.Update(ctx, quiz)
}

// Delete removes a draft quiz set.
func (s *QuizService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.quizRepo.Delete(ctx, id)
}

// ListQuestions retrieves a quiz set's questions for its author, answers included.
func (s *QuizService) ListQuestions(ctx context.Context, quizID uuid.UUID, authorID int) ([]model.Question, error) {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.AuthorID != authorID {
		return nil, ErrNotQuizAuthor
	}
	return s.questionRepo.ListByQuiz(ctx, quizID)
}

// AddQuestion appends a question to a draft quiz set and refreshes the
// set's aggregates.
func (s *QuizService) AddQuestion(ctx context.Context, authorID int, q *model.Question) error {
	quiz, err := s.quizRepo.GetByID(ctx, q.QuizID)
	if err != nil {
		return err
	}
	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}

	if err := s.questionRepo.Create(ctx, q); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return s.quizRepo.UpdateAggregates(ctx, q.QuizID)
}

// ReplaceQuestions swaps a draft quiz set's entire question list.
func (s *QuizService) ReplaceQuestions(ctx context.Context, quizID uuid.UUID, authorID int, questions []model.Question) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}

	if err := s.questionRepo.ReplaceAll(ctx, quizID, questions); err != nil {
		return fmt.Errorf("replace questions: %w", err)
	}
	return s.quizRepo.UpdateAggregates(ctx, quizID)
}

// Publish changes quiz status to PUBLISHED and caches the payload + answer key
// in Redis. This is the critical path that populates the fast lane.
func (s *QuizService) Publish(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Quiz published")
	return nil
}

// Archive retires a published quiz set and drops its cached payload so no new
// session can start from it. Existing sessions keep their answer key.
func (s *QuizService) Archive(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrQuizNotPublished
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if err := s.rdb.Del(ctx, config.CacheKey.QuizPayloadKey(quizID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Failed to drop payload cache")
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Quiz archived")
	return nil
}

// RefreshCache re-caches the payload + answer key for a published quiz.
func (s *QuizService) RefreshCache(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrQuizNotPublished
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Cache refreshed")
	return nil
}

// WarmQuizCache loads a quiz set's payload, answer key, and duration from
// PostgreSQL into Redis. Core cache-warming logic used by Publish,
// RefreshCache, and PrewarmAllCaches.
func (s *QuizService) WarmQuizCache(ctx context.Context, quiz *model.QuizSet) error {
	questions, err := s.questionRepo.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Build student-facing payload (without correct answers).
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      q.Options,
			Marks:        q.Marks,
			OrderNum:     q.OrderNum,
		}
	}

	payload := model.QuizPayload{
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		Subject:   quiz.Subject,
		Duration:  quiz.DurationMinutes,
		Questions: studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Build answer key map for RAM grading.
	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		entry, err := json.Marshal(answerKeyEntry{Answer: q.CorrectAnswer, Marks: q.Marks})
		if err != nil {
			return fmt.Errorf("marshal answer key entry: %w", err)
		}
		answerKey[q.ID.String()] = entry
	}

	// Cache all three atomically via pipeline.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(quiz.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizDurationKey(quiz.ID.String()), strconv.Itoa(quiz.DurationMinutes), 0)
	pipe.Del(ctx, config.CacheKey.QuizAnswerKey(quiz.ID.String()))
	pipe.HSet(ctx, config.CacheKey.QuizAnswerKey(quiz.ID.String()), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("quiz_id", quiz.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published quizzes into Redis on application
// startup. This prevents lazy-loading races under thundering herd traffic.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizRepo.ListPublished(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("list published quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No published quizzes to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(quizzes)).Msg("Prewarming published quizzes...")

	warmed := 0
	for i := range quizzes {
		if err := s.WarmQuizCache(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_id", quizzes[i].ID.String()).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

// GetQuizPayload retrieves the cached student payload from Redis.
func (s *QuizService) GetQuizPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(quizID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("quiz not published or payload not cached")
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey retrieves the answer key from Redis for instant grading.
// Values are answerKeyEntry JSON keyed by question ID.
func (s *QuizService) GetAnswerKey(ctx context.Context, quizID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.QuizAnswerKey(quizID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not found in cache")
	}
	return result, nil
}
