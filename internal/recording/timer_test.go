package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFiresExactlyOnceAtMax(t *testing.T) {
	timer := NewTimer(30 * time.Second)

	require.False(t, timer.Observe(29990*time.Millisecond).MaxReached)

	update := timer.Observe(30 * time.Second)
	require.True(t, update.MaxReached)
	require.Equal(t, 30, update.ElapsedSecs)

	require.False(t, timer.Observe(31*time.Second).MaxReached)
	require.True(t, timer.Fired())
}

func TestTimerIsMonotonic(t *testing.T) {
	timer := NewTimer(time.Minute)
	timer.Observe(5 * time.Second)
	update := timer.Observe(3 * time.Second)
	require.Equal(t, 5*time.Second, update.Elapsed)
	require.Equal(t, 5, timer.ElapsedSecs())
	require.False(t, update.ProgressChanged)
}

func TestTimerReportsProgressOnWholeSeconds(t *testing.T) {
	timer := NewTimer(time.Minute)
	require.False(t, timer.Observe(500*time.Millisecond).ProgressChanged)
	require.True(t, timer.Observe(time.Second).ProgressChanged)
	require.False(t, timer.Observe(1500*time.Millisecond).ProgressChanged)
	require.True(t, timer.Observe(2100*time.Millisecond).ProgressChanged)
}
