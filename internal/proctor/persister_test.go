package proctor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushAll_PartialFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn["q3"] = true
	p := NewPersister(store)

	now := time.Now()
	answers := map[string]Answer{
		"q1": {Text: "a1", At: now},
		"q2": {Text: "a2", At: now},
		"q3": {Text: "a3", At: now},
		"q4": {Text: "a4", At: now},
		"q5": {Text: "a5", At: now},
	}

	err := p.FlushAll(context.Background(), answers)

	// One failure does not abort the remaining flushes.
	var fe *FlushError
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Failed, 1)
	assert.Equal(t, "q3", fe.Failed[0].QuestionID)
	assert.Equal(t, 4, store.savedCount())
	assert.True(t, p.IsSaved("q4"))
	assert.False(t, p.IsSaved("q3"))
}

func TestFlushAll_SkipsBlankAnswers(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store)

	err := p.FlushAll(context.Background(), map[string]Answer{
		"q1": {Text: "  "},
		"q2": {Text: "real answer"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, store.savedCount())
}

func TestFlushAll_Empty(t *testing.T) {
	p := NewPersister(newFakeStore())
	require.NoError(t, p.FlushAll(context.Background(), nil))
}
