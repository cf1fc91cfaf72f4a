package bvh

import (
	"sync"
	"sync/atomic"

	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/jobs"
)

const (
	queryModeEmpty    = "empty"
	queryModeLeaf     = "leaf"
	queryModeParallel = "parallel"
)

// PendingQuery is the result of a query that may still be running.
type PendingQuery[K comparable, P any] struct {
	scheduler  jobs.Scheduler
	counter    *jobs.Counter
	generation uint64
	branches   [2][]Result[K, P]

	joinOnce sync.Once
	results  []Result[K, P]
}

// Done reports whether every branch of the query has finished.
func (q *PendingQuery[K, P]) Done() bool {
	return q.counter == nil || q.counter.Done()
}

// Wait joins the query branches and returns the objects found. The calling
// goroutine helps the scheduler while it waits. The order of the results is
// not defined.
func (q *PendingQuery[K, P]) Wait() []Result[K, P] {
	q.joinOnce.Do(func() {
		if q.counter != nil {
			q.scheduler.HelpAndWait(q.counter)
		}

		results := make([]Result[K, P], 0, len(q.branches[0])+len(q.branches[1]))
		results = append(results, q.branches[0]...)
		results = append(results, q.branches[1]...)
		q.results = results
		q.branches = [2][]Result[K, P]{}
	})
	return q.results
}

// Results is an alias of Wait.
func (q *PendingQuery[K, P]) Results() []Result[K, P] {
	return q.Wait()
}

// Generation returns the tree generation the query ran against.
func (q *PendingQuery[K, P]) Generation() uint64 {
	return q.generation
}

// Query returns the objects whose bounds are covered by the frustum. It does
// not block: below the root, the two subtrees are traversed by two jobs on the
// tree scheduler. The returned query must be joined with Wait.
func (t *Tree[K, P]) Query(f geom.Frustum) *PendingQuery[K, P] {
	t.phase.RLock()

	q := &PendingQuery[K, P]{
		scheduler:  t.opts.scheduler,
		generation: t.generation.Load(),
	}

	if t.root == None {
		t.phase.RUnlock()
		instrumentQuery(t.name, queryModeEmpty, 0)
		return q
	}

	root := t.arena.node(t.root)
	if !f.Covers(root.Bounds) {
		t.phase.RUnlock()
		instrumentQuery(t.name, queryModeEmpty, 0)
		return q
	}

	if root.HasObject {
		q.branches[0] = []Result[K, P]{{Key: root.Key, Payload: root.Payload}}
		t.phase.RUnlock()
		instrumentQuery(t.name, queryModeLeaf, 1)
		return q
	}

	left, right := root.Left, root.Right

	// The read phase ends when the last branch finishes, not when the query
	// is joined.
	var remaining atomic.Int32
	remaining.Store(2)
	finish := func() {
		if remaining.Add(-1) == 0 {
			t.phase.RUnlock()
			instrumentQuery(t.name, queryModeParallel, len(q.branches[0])+len(q.branches[1]))
		}
	}

	q.counter = t.opts.scheduler.Schedule(
		func() {
			defer finish()
			q.branches[0] = t.collect(f, left, nil)
		},
		func() {
			defer finish()
			q.branches[1] = t.collect(f, right, nil)
		},
	)
	return q
}

func (t *Tree[K, P]) collect(f geom.Frustum, s Slot, out []Result[K, P]) []Result[K, P] {
	n := t.arena.node(s)
	if !f.Covers(n.Bounds) {
		return out
	}

	if n.HasObject {
		return append(out, Result[K, P]{Key: n.Key, Payload: n.Payload})
	}

	out = t.collect(f, n.Left, out)
	return t.collect(f, n.Right, out)
}
