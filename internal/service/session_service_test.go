package service

import (
	"testing"

	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/stretchr/testify/require"
)

func TestEffectiveDuration(t *testing.T) {
	quiz := &model.QuizSet{DurationMinutes: 45, QuestionCount: 20}

	// Explicit request override wins.
	require.Equal(t, 90, effectiveDuration(quiz, 90))

	// Quiz default when no override.
	require.Equal(t, 45, effectiveDuration(quiz, 0))

	// Fallback: two minutes per question.
	noDefault := &model.QuizSet{QuestionCount: 15}
	require.Equal(t, 30, effectiveDuration(noDefault, 0))
}

func TestGradeAnswers(t *testing.T) {
	key := map[string]string{
		"q1": `{"a":"b","m":5}`,
		"q2": `{"a":"Paris","m":3}`,
		"q3": `{"a":"42","m":2}`,
	}

	t.Run("all correct", func(t *testing.T) {
		score, total := gradeAnswers(key, map[string]string{
			"q1": "b", "q2": "Paris", "q3": "42",
		})
		require.Equal(t, 10.0, score)
		require.Equal(t, 10, total)
	})

	t.Run("partial", func(t *testing.T) {
		score, total := gradeAnswers(key, map[string]string{
			"q1": "b", "q2": "London",
		})
		require.Equal(t, 5.0, score)
		require.Equal(t, 10, total)
	})

	t.Run("trim and case insensitive", func(t *testing.T) {
		score, _ := gradeAnswers(key, map[string]string{
			"q2": "  paris ",
		})
		require.Equal(t, 3.0, score)
	})

	t.Run("no answers", func(t *testing.T) {
		score, total := gradeAnswers(key, map[string]string{})
		require.Equal(t, 0.0, score)
		require.Equal(t, 10, total)
	})

	t.Run("unknown question ignored", func(t *testing.T) {
		score, total := gradeAnswers(key, map[string]string{
			"q99": "b",
		})
		require.Equal(t, 0.0, score)
		require.Equal(t, 10, total)
	})

	t.Run("malformed key entry skipped", func(t *testing.T) {
		badKey := map[string]string{
			"q1": `{"a":"b","m":5}`,
			"q2": `not json`,
		}
		score, total := gradeAnswers(badKey, map[string]string{"q1": "b"})
		require.Equal(t, 5.0, score)
		require.Equal(t, 5, total)
	})
}
