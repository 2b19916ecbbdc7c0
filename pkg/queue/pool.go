package queue

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is the shared worker pool servicing every instance queue. Workers
// claim one task per notification token, so single-threaded queues are
// serialized while threaded queues fan out across workers.
type Pool struct {
	workers int

	mu       sync.Mutex
	cond     *sync.Cond
	runnable []*Queue
	queues   map[*Queue]struct{}
	stopped  bool

	wg       sync.WaitGroup
	inFlight atomic.Int64
	executed atomic.Uint64
}

// NewPool starts a pool with the given number of workers. A count of zero
// or less falls back to the number of logical CPUs.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		workers: workers,
		queues:  make(map[*Queue]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Printf("[Pool] Started %d worker threads", workers)
	return p
}

// Workers returns the worker count
func (p *Pool) Workers() int {
	return p.workers
}

// NewQueue creates a queue serviced by this pool. Threaded queues may have
// several tasks running at once; single-threaded queues never do.
func (p *Pool) NewQueue(threaded bool) *Queue {
	q := newQueue(p, threaded)
	p.mu.Lock()
	p.queues[q] = struct{}{}
	p.mu.Unlock()
	return q
}

// Remove disables a queue, waits for any in-flight task to finish and
// unregisters it from the pool.
func (p *Pool) Remove(q *Queue) {
	q.Disable()
	q.waitIdle()
	p.mu.Lock()
	delete(p.queues, q)
	p.mu.Unlock()
}

// Stop halts the pool: no new tasks are claimed, tasks already executing
// run to completion, and everything still pending is discarded. Blocks
// until all workers have exited.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.runnable = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	dropped := p.Depth()
	if dropped > 0 {
		log.Printf("[Pool] Stopped, discarded %d pending tasks", dropped)
	} else {
		log.Printf("[Pool] Stopped")
	}
}

// Depth returns the total number of pending tasks across all queues
func (p *Pool) Depth() int {
	p.mu.Lock()
	qs := make([]*Queue, 0, len(p.queues))
	for q := range p.queues {
		qs = append(qs, q)
	}
	p.mu.Unlock()

	depth := 0
	for _, q := range qs {
		depth += q.Len()
	}
	return depth
}

// InFlight returns the number of tasks currently executing
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// TasksExecuted returns the total number of tasks run since start
func (p *Pool) TasksExecuted() uint64 {
	return p.executed.Load()
}

// notify hands the pool a claim token for one task on q
func (p *Pool) notify(q *Queue) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.runnable = append(p.runnable, q)
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *Pool) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Pool) taskStarted() {
	p.inFlight.Add(1)
}

func (p *Pool) taskFinished() {
	p.inFlight.Add(-1)
	p.executed.Add(1)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.runnable) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		q := p.runnable[0]
		p.runnable = p.runnable[1:]
		p.mu.Unlock()

		q.runOne()
	}
}
