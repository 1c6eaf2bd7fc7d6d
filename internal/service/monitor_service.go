package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prepnest/tutor-backend/internal/repository"
)

// MonitorService orchestrates live quiz monitoring business logic.
type MonitorService struct {
	answerRepo    *repository.AnswerRepository
	violationRepo *repository.ViolationRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(answerRepo *repository.AnswerRepository, violationRepo *repository.ViolationRepository) *MonitorService {
	return &MonitorService{answerRepo: answerRepo, violationRepo: violationRepo}
}

// StudentProgressSnapshot holds the answered count and violation count for
// every student with activity in a quiz.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered_count
	ViolationCounts map[int]int64 // student_id → violation_count
	TotalViolations int64         // total violations in the quiz
}

// GetStudentProgress returns answered counts and violation counts. The two
// independent fetches run in parallel to minimize latency.
func (s *MonitorService) GetStudentProgress(ctx context.Context, quizID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.answerRepo.CountsByQuiz(ctx, quizID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.violationRepo.CountsByQuiz(ctx, quizID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}
