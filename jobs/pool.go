package jobs

import (
	"runtime"
	"sync"
)

type task struct {
	job     Job
	counter *Counter
}

// Pool is a scheduler backed by a fixed set of worker goroutines.
type Pool struct {
	queue   chan task
	wg      sync.WaitGroup
	workers int

	closeMutex sync.RWMutex
	closed     bool
}

// NewPool starts a pool with the given number of workers. Values <= 0 default to
// runtime.NumCPU() workers and a queue of 64 jobs per worker.
func NewPool(workers int, queueSize int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 64
	}

	p := &Pool{
		queue:   make(chan task, queueSize),
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	instrumentWorkers(workers)
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()

	for t := range p.queue {
		runJob(t.job, t.counter, executorWorker)
	}
}

// Schedule queues the jobs. When the queue is full or the pool is closed, the
// job runs on the calling goroutine.
func (p *Pool) Schedule(jobs ...Job) *Counter {
	c := NewCounter(len(jobs))
	instrumentSchedule(len(jobs))

	p.closeMutex.RLock()
	defer p.closeMutex.RUnlock()

	for _, j := range jobs {
		if p.closed {
			runJob(j, c, executorInline)
			continue
		}

		select {
		case p.queue <- task{job: j, counter: c}:
		default:
			runJob(j, c, executorInline)
		}
	}
	return c
}

// HelpAndWait runs queued jobs on the calling goroutine until the counter
// completes.
func (p *Pool) HelpAndWait(c *Counter) {
	for !c.Done() {
		select {
		case <-c.C():
			return

		case t, ok := <-p.queue:
			if !ok {
				c.Wait()
				return
			}
			runJob(t.job, t.counter, executorHelper)
		}
	}
}

// Close stops accepting jobs, waits for queued jobs to run and stops the
// workers.
func (p *Pool) Close() {
	p.closeMutex.Lock()
	if p.closed {
		p.closeMutex.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.closeMutex.Unlock()

	p.wg.Wait()
	instrumentWorkers(-p.workers)
}
