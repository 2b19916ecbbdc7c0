package queue

import (
	"errors"
	"sync"
)

var (
	ErrQueueDisabled = errors.New("queue disabled")
	ErrPoolStopped   = errors.New("pool stopped")
)

// Task is one unit of work executed by a pool worker
type Task func()

// Queue is an ordered task queue owned by one plugin instance and serviced
// by the shared Pool. A single-threaded queue never runs more than one of
// its tasks at a time; a threaded queue lets the pool run them in parallel.
type Queue struct {
	pool     *Pool
	threaded bool

	mu       sync.Mutex
	quiet    *sync.Cond
	tasks    []Task
	disabled bool
	armed    bool // single-threaded only: a worker currently owns this queue
	running  int
}

func newQueue(p *Pool, threaded bool) *Queue {
	q := &Queue{pool: p, threaded: threaded}
	q.quiet = sync.NewCond(&q.mu)
	return q
}

// Threaded reports whether the pool may run this queue's tasks in parallel
func (q *Queue) Threaded() bool {
	return q.threaded
}

// Len returns the number of pending tasks
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Push appends a task for execution. It fails once the queue has been
// disabled or the pool has stopped; it never blocks on task execution.
func (q *Queue) Push(t Task) error {
	if q.pool.isStopped() {
		return ErrPoolStopped
	}
	q.mu.Lock()
	if q.disabled {
		q.mu.Unlock()
		return ErrQueueDisabled
	}
	q.tasks = append(q.tasks, t)
	if q.threaded {
		q.mu.Unlock()
		q.pool.notify(q)
		return nil
	}
	if !q.armed {
		q.armed = true
		q.mu.Unlock()
		q.pool.notify(q)
		return nil
	}
	q.mu.Unlock()
	return nil
}

// Disable stops intake and drops all pending tasks. A task already being
// executed by a worker is allowed to finish; use Pool.Remove to wait for it.
func (q *Queue) Disable() {
	q.mu.Lock()
	q.disabled = true
	q.tasks = nil
	q.armed = false
	q.mu.Unlock()
}

// runOne executes at most one pending task. Called by pool workers, one
// call per claim token handed out through Pool.notify.
func (q *Queue) runOne() {
	q.mu.Lock()
	if q.disabled || len(q.tasks) == 0 {
		if !q.threaded {
			q.armed = false
		}
		if q.running == 0 {
			q.quiet.Broadcast()
		}
		q.mu.Unlock()
		return
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.running++
	q.mu.Unlock()

	q.pool.taskStarted()
	t()
	q.pool.taskFinished()

	q.mu.Lock()
	q.running--
	if !q.threaded {
		if !q.disabled && len(q.tasks) > 0 {
			q.mu.Unlock()
			q.pool.notify(q)
			q.mu.Lock()
		} else {
			q.armed = false
		}
	}
	if q.running == 0 {
		q.quiet.Broadcast()
	}
	q.mu.Unlock()
}

// waitIdle blocks until no worker is executing a task from this queue.
// Only meaningful after Disable: a disabled queue hands out no new work,
// so once running reaches zero it stays there.
func (q *Queue) waitIdle() {
	q.mu.Lock()
	for q.running > 0 {
		q.quiet.Wait()
	}
	q.mu.Unlock()
}
