package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepnest/tutor-backend/internal/model"
)

// ViolationRepository handles integrity violation data access. Writes go
// through the violation worker; this layer serves reads and single inserts.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Create inserts a single violation row. The workers use CopyFrom for bulk
// inserts; this path exists for the row-by-row fallback.
func (r *ViolationRepository) Create(ctx context.Context, v *model.Violation) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_violations (quiz_id, student_id, event_type, event_data, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		v.QuizID, v.StudentID, v.EventType, v.EventData, v.RecordedAt,
	).Scan(&v.ID)
}

// CountByQuizAndStudent returns the persisted violation count for one student
// in one quiz.
func (r *ViolationRepository) CountByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_violations
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	).Scan(&count)
	return count, err
}

// CountsByQuiz returns per-student violation counts for a quiz, keyed by
// student ID. Used by the live monitor snapshot.
func (r *ViolationRepository) CountsByQuiz(ctx context.Context, quizID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM quiz_violations
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

// ListByQuizAndStudent returns the violation log for one student in one quiz,
// newest first.
func (r *ViolationRepository) ListByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int, limit int) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, student_id, event_type, event_data, recorded_at
		 FROM quiz_violations
		 WHERE quiz_id = $1 AND student_id = $2
		 ORDER BY recorded_at DESC
		 LIMIT $3`, quizID, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.QuizID, &v.StudentID, &v.EventType, &v.EventData, &v.RecordedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
