package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMonitor_StartIdempotent(t *testing.T) {
	m := NewEventMonitor()

	var count int
	require.NoError(t, m.Start(func(ViolationEvent) { count++ }))

	// Second Start must not replace the handler.
	require.NoError(t, m.Start(func(ViolationEvent) { count += 100 }))

	m.Report(ViolationEvent{Type: ViolationTabBlur, At: time.Now()})
	assert.Equal(t, 1, count)
}

func TestEventMonitor_StopDropsEvents(t *testing.T) {
	m := NewEventMonitor()

	var count int
	require.NoError(t, m.Start(func(ViolationEvent) { count++ }))

	m.Stop()
	m.Stop() // safe on every exit path, repeatedly

	m.Report(ViolationEvent{Type: ViolationCopyAttempt, At: time.Now()})
	assert.Equal(t, 0, count)
}

func TestEventMonitor_FullscreenTracking(t *testing.T) {
	m := NewEventMonitor()
	require.NoError(t, m.Start(func(ViolationEvent) {}))

	assert.True(t, m.IsFullscreen())

	m.Report(ViolationEvent{Type: ViolationFullscreenExit, At: time.Now()})
	assert.False(t, m.IsFullscreen())

	m.SetFullscreen(true)
	assert.True(t, m.IsFullscreen())
}

func TestEventMonitor_ExitFullscreen(t *testing.T) {
	m := NewEventMonitor()

	var signalled bool
	m.SetExitFunc(func() error {
		signalled = true
		return nil
	})

	require.NoError(t, m.ExitFullscreen())
	assert.True(t, signalled)
	assert.False(t, m.IsFullscreen())

	// Without a callback it is still a harmless no-op.
	m2 := NewEventMonitor()
	require.NoError(t, m2.ExitFullscreen())
}

func TestNoopMonitor_Degrades(t *testing.T) {
	var m Monitor = NoopMonitor{}

	require.NoError(t, m.Start(func(ViolationEvent) {
		t.Fatal("noop monitor must never report violations")
	}))
	assert.True(t, m.IsFullscreen())
	require.NoError(t, m.ExitFullscreen())
	m.Stop()
}
