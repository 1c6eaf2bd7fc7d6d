package proctor

import "time"

// Clock abstracts wall-clock time so the controller can be driven
// deterministically in tests. Remaining time is always derived from
// Now() minus the session start, never from a decrementing counter,
// so tab suspension or tick throttling cannot stretch a session.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
