package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// SessionStartKey returns the cache key for a student's quiz session start time.
func (r *CacheKeyStruct) SessionStartKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:session_start", studentID, quizID)
}

// SessionDurationKey returns the cache key for a session's effective duration.
// Sessions may run with a duration different from the quiz default.
func (r *CacheKeyStruct) SessionDurationKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:duration", studentID, quizID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers.
func (r *CacheKeyStruct) StudentAnswersKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:answers", studentID, quizID)
}

// QuizPayloadKey returns the cache key for a quiz set's student-facing payload.
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizDurationKey returns the cache key for a quiz set's duration.
func (r *CacheKeyStruct) QuizDurationKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:duration", quizID)
}

// QuizAnswerKey returns the cache key for a quiz set's answer key.
func (r *CacheKeyStruct) QuizAnswerKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:key", quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz monitor.
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

// StudentActiveQuizKey returns the cache key for a student's currently active quiz.
func (r *CacheKeyStruct) StudentActiveQuizKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_quiz", studentID)
}

var CacheKey = NewCacheKeyStruct()
