package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepnest/tutor-backend/internal/model"
)

// QuizRepository handles quiz set data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

const quizColumns = `id, title, subject, year, author_id, duration_minutes,
	        total_marks, question_count, status, created_at, updated_at`

func scanQuiz(row interface{ Scan(...any) error }, q *model.QuizSet) error {
	return row.Scan(&q.ID, &q.Title, &q.Subject, &q.Year, &q.AuthorID, &q.DurationMinutes,
		&q.TotalMarks, &q.QuestionCount, &q.Status, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID retrieves a quiz set by its UUID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuizSet, error) {
	q := &model.QuizSet{}
	err := scanQuiz(r.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM quiz_sets WHERE id = $1`, id), q)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts a new quiz set in DRAFT status.
func (r *QuizRepository) Create(ctx context.Context, q *model.QuizSet) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sets (title, subject, year, author_id, duration_minutes, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		q.Title, q.Subject, q.Year, q.AuthorID, q.DurationMinutes, q.Status,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update modifies a quiz set's editable fields.
func (r *QuizRepository) Update(ctx context.Context, q *model.QuizSet) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_sets
		 SET title = $1, subject = $2, year = $3, duration_minutes = $4, updated_at = NOW()
		 WHERE id = $5`,
		q.Title, q.Subject, q.Year, q.DurationMinutes, q.ID)
	return err
}

// UpdateStatus updates a quiz set's status.
func (r *QuizRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_sets SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// UpdateAggregates recomputes total_marks and question_count from the
// questions table. Called after the question list changes.
func (r *QuizRepository) UpdateAggregates(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_sets
		 SET total_marks = sub.marks, question_count = sub.cnt, updated_at = NOW()
		 FROM (SELECT COALESCE(SUM(marks), 0) AS marks, COUNT(*) AS cnt
		       FROM questions WHERE quiz_id = $1) sub
		 WHERE id = $1`, id)
	return err
}

// Delete removes a quiz set. Questions cascade at the schema level.
func (r *QuizRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM quiz_sets WHERE id = $1`, id)
	return err
}

// ListByAuthorPaginated retrieves quiz sets authored by a teacher with pagination.
func (r *QuizRepository) ListByAuthorPaginated(ctx context.Context, authorID, page, perPage int) ([]model.QuizSet, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_sets WHERE author_id = $1`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT `+quizColumns+`
		 FROM quiz_sets WHERE author_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, authorID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quizzes []model.QuizSet
	for rows.Next() {
		var q model.QuizSet
		if err := scanQuiz(rows, &q); err != nil {
			return nil, 0, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, total, rows.Err()
}

// ListPublished returns published quiz sets, optionally filtered by subject
// and year. Used both for the student lobby and for cache prewarming.
func (r *QuizRepository) ListPublished(ctx context.Context, subject *model.Subject, year *int) ([]model.QuizSet, error) {
	query := `SELECT ` + quizColumns + ` FROM quiz_sets WHERE status = $1`
	args := []any{model.QuizStatusPublished}

	if subject != nil && *subject != "" {
		args = append(args, *subject)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if year != nil {
		args = append(args, *year)
		query += fmt.Sprintf(" AND year = $%d", len(args))
	}
	query += ` ORDER BY subject ASC, year DESC NULLS LAST, created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.QuizSet
	for rows.Next() {
		var q model.QuizSet
		if err := scanQuiz(rows, &q); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}
