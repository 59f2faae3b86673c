package metrics

import (
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing count safe for concurrent use.
type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
	now   func() time.Time
}

func StartTimer() *Timer {
	return startTimer(time.Now)
}

func startTimer(now func() time.Time) *Timer {
	return &Timer{start: now(), now: now}
}

func (t *Timer) Duration() time.Duration {
	return t.now().Sub(t.start)
}
