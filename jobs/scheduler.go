// Package jobs provides the job scheduler used to fan out work items and to
// join them cooperatively.
package jobs

import (
	"fmt"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Job is a unit of work executed by a Scheduler.
type Job func()

// Scheduler is the interface that describes a job scheduler.
type Scheduler interface {
	// Schedules the given jobs and returns a counter that completes once every
	// job has run.
	Schedule(jobs ...Job) *Counter

	// Blocks until the counter completes. The calling goroutine may execute
	// other pending jobs while it waits.
	HelpAndWait(c *Counter)
}

const (
	executorWorker = "worker"
	executorHelper = "helper"
	executorInline = "inline"
)

func runJob(job Job, c *Counter, executor string) {
	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			instrumentPanic(executor)
			logs.WithTag("executor", executor).
				Error(errors.New("job panicked").
					WithTag("panic", fmt.Sprint(r)))
		}
	}()

	job()
	instrumentExecution(executor)
}

// Inline is a scheduler that runs jobs synchronously on the scheduling
// goroutine.
type Inline struct{}

func (Inline) Schedule(jobs ...Job) *Counter {
	c := NewCounter(len(jobs))
	instrumentSchedule(len(jobs))

	for _, j := range jobs {
		runJob(j, c, executorInline)
	}
	return c
}

func (Inline) HelpAndWait(c *Counter) {
	c.Wait()
}
