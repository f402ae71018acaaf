// Package recording enforces the absolute capture ceiling and drives
// progress reporting for the active session.
package recording

import "time"

// Update is the outcome of one timer observation.
type Update struct {
	Elapsed         time.Duration
	ElapsedSecs     int
	ProgressChanged bool
	MaxReached      bool
}

// Timer tracks elapsed capture time against a hard maximum.
type Timer struct {
	max     time.Duration
	elapsed time.Duration
	secs    int
	fired   bool
}

func NewTimer(max time.Duration) *Timer {
	return &Timer{max: max}
}

// Observe records an elapsed offset. Offsets that go backwards are ignored,
// so callers may mix audio time and wall-clock ticks. MaxReached is reported
// exactly once.
func (t *Timer) Observe(elapsed time.Duration) Update {
	if elapsed > t.elapsed {
		t.elapsed = elapsed
	}

	secs := int(t.elapsed / time.Second)
	update := Update{Elapsed: t.elapsed, ElapsedSecs: secs}
	if secs != t.secs {
		t.secs = secs
		update.ProgressChanged = true
	}

	if !t.fired && t.max > 0 && t.elapsed >= t.max {
		t.fired = true
		update.MaxReached = true
	}
	return update
}

// Elapsed returns the largest observed offset.
func (t *Timer) Elapsed() time.Duration {
	return t.elapsed
}

// ElapsedSecs returns the whole seconds elapsed.
func (t *Timer) ElapsedSecs() int {
	return t.secs
}

// Fired reports whether the maximum has been reached.
func (t *Timer) Fired() bool {
	return t.fired
}
