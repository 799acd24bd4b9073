package adunit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSkipTimerCountsWholeSeconds(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	timer := NewSkipTimer(clock)

	require.Equal(0, timer.Seconds())
	timer.Start()
	for i := 1; i <= 30; i++ {
		clock.Advance(time.Second)
		require.Equal(i, timer.Seconds())
	}
}

func TestSkipTimerPauseResume(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	timer := NewSkipTimer(clock)

	timer.Start()
	clock.Advance(2 * time.Second)
	timer.Stop()
	clock.Advance(3 * time.Second)
	require.Equal(2, timer.Seconds())

	timer.Start()
	clock.Advance(3 * time.Second)
	require.Equal(5, timer.Seconds())
}

func TestSkipTimerRapidToggle(t *testing.T) {
	require := require.New(t)
	clock := newFakeClock()
	timer := NewSkipTimer(clock)

	for i := 0; i < 10; i++ {
		timer.Start()
		timer.Start()
		clock.Advance(500 * time.Millisecond)
		timer.Stop()
		timer.Stop()
		clock.Advance(time.Second)
	}
	require.False(timer.Running())
	require.Equal(5*time.Second, timer.Elapsed())
	require.Equal(5, timer.Seconds())
}
