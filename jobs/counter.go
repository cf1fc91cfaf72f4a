package jobs

import (
	"sync"
	"sync/atomic"
)

// Counter is a completion handle for a group of scheduled jobs.
type Counter struct {
	remaining atomic.Int64
	doneOnce  sync.Once
	done      chan struct{}
}

// NewCounter returns a counter waiting for n jobs. A counter created with n <= 0
// is already complete.
func NewCounter(n int) *Counter {
	c := &Counter{
		done: make(chan struct{}),
	}
	c.remaining.Store(int64(n))

	if n <= 0 {
		c.doneOnce.Do(func() { close(c.done) })
	}
	return c
}

// Done reports whether all the jobs have run.
func (c *Counter) Done() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until all the jobs have run.
func (c *Counter) Wait() {
	<-c.done
}

// Remaining returns the number of jobs that did not run yet.
func (c *Counter) Remaining() int {
	if n := c.remaining.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// C returns a channel that is closed once all the jobs have run.
func (c *Counter) C() <-chan struct{} {
	return c.done
}

func (c *Counter) finish() {
	if c.remaining.Add(-1) == 0 {
		c.doneOnce.Do(func() { close(c.done) })
	}
}
