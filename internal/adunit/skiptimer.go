package adunit

import (
	"time"
)

// Clock is the time source of a controller.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// SkipTimer accumulates time spent playing. Stopping and restarting it keeps
// the total, so toggling playback never double counts or resets progress.
// It is not safe for concurrent use; the controller serialises access.
type SkipTimer struct {
	clock     Clock
	elapsed   time.Duration
	startedAt time.Time
	running   bool
}

func NewSkipTimer(clock Clock) *SkipTimer {
	return &SkipTimer{clock: clock}
}

func (t *SkipTimer) Start() {
	if t.running {
		return
	}
	t.startedAt = t.clock.Now()
	t.running = true
}

func (t *SkipTimer) Stop() {
	if !t.running {
		return
	}
	t.elapsed += t.clock.Now().Sub(t.startedAt)
	t.running = false
}

func (t *SkipTimer) Running() bool {
	return t.running
}

func (t *SkipTimer) Elapsed() time.Duration {
	if t.running {
		return t.elapsed + t.clock.Now().Sub(t.startedAt)
	}
	return t.elapsed
}

// Seconds is the number of whole seconds spent playing.
func (t *SkipTimer) Seconds() int {
	return int(t.Elapsed() / time.Second)
}
