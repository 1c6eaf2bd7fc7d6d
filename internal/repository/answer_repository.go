package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository handles persisted session answer data access. The hot
// write path goes through Redis and the answer worker; this layer serves
// reads and the worker's fallback.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or updates a single answer row.
func (r *AnswerRepository) Upsert(ctx context.Context, quizID uuid.UUID, studentID int, questionID uuid.UUID, answer string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (quiz_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		quizID, studentID, questionID, answer)
	return err
}

// Delete removes a single answer row. Blank answers count as unanswered, so
// clearing an answer deletes the row instead of storing an empty string.
func (r *AnswerRepository) Delete(ctx context.Context, quizID uuid.UUID, studentID int, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM session_answers
		 WHERE quiz_id = $1 AND student_id = $2 AND question_id = $3`,
		quizID, studentID, questionID)
	return err
}

// MapByQuizAndStudent returns a student's persisted answers keyed by question
// ID. Used to rebuild session state when the Redis answer hash is gone.
func (r *AnswerRepository) MapByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer
		 FROM session_answers
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var questionID uuid.UUID
		var answer string
		if err := rows.Scan(&questionID, &answer); err != nil {
			return nil, err
		}
		answers[questionID.String()] = answer
	}
	return answers, rows.Err()
}

// CountsByQuiz returns per-student answered-question counts for a quiz,
// keyed by student ID. Used by the live monitor snapshot.
func (r *AnswerRepository) CountsByQuiz(ctx context.Context, quizID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM session_answers
		 WHERE quiz_id = $1
		 GROUP BY student_id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var count int64
		if err := rows.Scan(&studentID, &count); err != nil {
			return nil, err
		}
		counts[studentID] = count
	}
	return counts, rows.Err()
}
