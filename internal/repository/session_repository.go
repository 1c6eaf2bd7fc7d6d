package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepnest/tutor-backend/internal/model"
)

// SessionResult combines student data with their quiz session outcome.
type SessionResult struct {
	StudentID  int                 `json:"student_id"`
	Name       string              `json:"name"`
	Email      string              `json:"email"`
	GradeLevel string              `json:"grade_level"`
	Score      *float64            `json:"score"`
	TotalMarks *int                `json:"total_marks"`
	Status     model.SessionStatus `json:"status"`
	StartedAt  *time.Time          `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at"`
}

// SessionRepository handles quiz session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByQuizAndStudent retrieves a session for a specific quiz-student combination.
func (r *SessionRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, student_id, started_at, finished_at, duration_minutes, status, score, total_marks
		 FROM quiz_sessions
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	).Scan(&s.ID, &s.QuizID, &s.StudentID, &s.StartedAt, &s.FinishedAt, &s.DurationMinutes, &s.Status, &s.Score, &s.TotalMarks)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, student_id, started_at, finished_at, duration_minutes, status, score, total_marks
		 FROM quiz_sessions
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.QuizID, &s.StudentID, &s.StartedAt, &s.FinishedAt, &s.DurationMinutes, &s.Status, &s.Score, &s.TotalMarks)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new quiz session (student starts the quiz). The unique
// (quiz_id, student_id) constraint makes concurrent starts converge on one
// row; pgx.ErrNoRows signals the row already existed.
func (r *SessionRepository) Create(ctx context.Context, s *model.QuizSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (quiz_id, student_id, duration_minutes, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		s.QuizID, s.StudentID, s.DurationMinutes, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt)
}

// Complete marks a session as completed with a score. The status guard keeps
// completion write-once even if two submit paths race.
func (r *SessionRepository) Complete(ctx context.Context, quizID uuid.UUID, studentID int, score float64, totalMarks int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, score = $2, total_marks = $3, finished_at = $4
		 WHERE quiz_id = $5 AND student_id = $6 AND status = $7`,
		model.SessionStatusCompleted, score, totalMarks, time.Now(),
		quizID, studentID, model.SessionStatusInProgress)
	return err
}

// ListByStudent retrieves all sessions for a given student.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.QuizSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, student_id, started_at, finished_at, duration_minutes, status, score, total_marks
		 FROM quiz_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.QuizSession
	for rows.Next() {
		var s model.QuizSession
		if err := rows.Scan(&s.ID, &s.QuizID, &s.StudentID, &s.StartedAt, &s.FinishedAt, &s.DurationMinutes, &s.Status, &s.Score, &s.TotalMarks); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListByQuiz retrieves all student results for a specific quiz with pagination.
func (r *SessionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]SessionResult, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_sessions WHERE quiz_id = $1`, quizID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.email, s.grade_level,
		        qs.score, qs.total_marks, qs.status, qs.started_at, qs.finished_at
		 FROM quiz_sessions qs
		 JOIN students s ON qs.student_id = s.id
		 WHERE qs.quiz_id = $1
		 ORDER BY s.name ASC
		 LIMIT $2 OFFSET $3`, quizID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var res SessionResult
		var startedAt time.Time
		if err := rows.Scan(
			&res.StudentID, &res.Name, &res.Email, &res.GradeLevel,
			&res.Score, &res.TotalMarks, &res.Status, &startedAt, &res.FinishedAt,
		); err != nil {
			return nil, 0, err
		}
		res.StartedAt = &startedAt
		results = append(results, res)
	}
	return results, total, rows.Err()
}
