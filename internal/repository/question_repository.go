package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepnest/tutor-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByQuiz retrieves all questions for a given quiz set, ordered by order_num.
func (r *QuestionRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, question_text, question_type, options, correct_answer, marks, order_num
		 FROM questions WHERE quiz_id = $1
		 ORDER BY order_num`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuestionText, &q.QuestionType, &q.Options, &q.CorrectAnswer, &q.Marks, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (quiz_id, question_text, question_type, options, correct_answer, marks, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.QuizID, q.QuestionText, q.QuestionType, q.Options, q.CorrectAnswer, q.Marks, q.OrderNum,
	).Scan(&q.ID)
}

// ReplaceAll deletes every question of a quiz set and inserts the new list in
// a single transaction, so the quiz is never observed half-replaced.
func (r *QuestionRepository) ReplaceAll(ctx context.Context, quizID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quizID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		if err := tx.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, question_text, question_type, options, correct_answer, marks, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			quizID, q.QuestionText, q.QuestionType, q.Options, q.CorrectAnswer, q.Marks, q.OrderNum,
		).Scan(&q.ID); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}
