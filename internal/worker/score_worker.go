package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoreWorker consumes the persist scores queue and marks sessions COMPLETED
// with their graded score in bulk.
type ScoreWorker struct {
	pool        *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewScoreWorker creates a new ScoreWorker.
func NewScoreWorker(pool *pgxpool.Pool, sessionRepo *repository.SessionRepository, rdb *redis.Client, log zerolog.Logger) *ScoreWorker {
	return &ScoreWorker{
		pool:        pool,
		sessionRepo: sessionRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "score_worker").Logger(),
	}
}

type scorePayload struct {
	StudentID  int     `json:"student_id"`
	QuizID     string  `json:"quiz_id"`
	Score      float64 `json:"score"`
	TotalMarks int     `json:"total_marks"`
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *ScoreWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*scorePayload, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p scorePayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ScoreWorker) flushSafe(ctx context.Context, batch []*scorePayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdateScores(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk score update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("Single score update failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
			}
		}
		return
	}

	// Scores are durable; drop the per-session Redis state.
	w.bulkClearSessionState(ctx, batch)
}

// bulkUpdateScores completes many sessions in one statement via UNNEST.
func (w *ScoreWorker) bulkUpdateScores(ctx context.Context, batch []*scorePayload) error {
	n := len(batch)

	quizIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	scores := make([]float64, 0, n)
	totalMarks := make([]int, 0, n)
	finishedAts := make([]time.Time, n)

	now := time.Now()
	for i, p := range batch {
		qID, err := uuid.Parse(p.QuizID)
		if err != nil {
			return err
		}
		quizIDs = append(quizIDs, qID)
		students = append(students, p.StudentID)
		scores = append(scores, p.Score)
		totalMarks = append(totalMarks, p.TotalMarks)
		finishedAts[i] = now
	}

	query := `
		UPDATE quiz_sessions AS s
		SET status = 'COMPLETED',
		    score = t.score,
		    total_marks = t.total_marks,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.quiz_id,
				u.student_id,
				u.score,
				u.total_marks,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::float8[],
				$4::int[],
				$5::timestamptz[]
			) AS u (quiz_id, student_id, score, total_marks, finished_at)
		) AS t
		WHERE s.quiz_id = t.quiz_id
		  AND s.student_id = t.student_id
		  AND s.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, quizIDs, students, scores, totalMarks, finishedAts)
	return err
}

// bulkClearSessionState deletes the autosave hashes and timing keys for
// completed sessions.
func (w *ScoreWorker) bulkClearSessionState(ctx context.Context, batch []*scorePayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(p.QuizID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.SessionStartKey(p.QuizID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.SessionDurationKey(p.QuizID, p.StudentID))
	}

	_, _ = pipe.Exec(ctx)
}

func (w *ScoreWorker) persistSingle(ctx context.Context, p *scorePayload) error {
	qID, err := uuid.Parse(p.QuizID)
	if err != nil {
		return err
	}
	return w.sessionRepo.Complete(ctx, qID, p.StudentID, p.Score, p.TotalMarks)
}
