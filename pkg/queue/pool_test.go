package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// TestSingleThreadedOrdering verifies a single-threaded queue runs tasks
// strictly in push order even with many workers available
func TestSingleThreadedOrdering(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	q := p.NewQueue(false)

	var mu sync.Mutex
	var got []int

	const n = 50
	for i := 0; i < n; i++ {
		i := i
		if err := q.Push(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("Task %d ran out of order (got sequence value %d)", i, v)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after drain, got %d pending", q.Len())
	}
}

// TestSingleThreadedNoOverlap verifies that two tasks of the same
// single-threaded queue never execute concurrently
func TestSingleThreadedNoOverlap(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	q := p.NewQueue(false)

	var concurrent atomic.Int64
	var overlaps atomic.Int64
	var done atomic.Int64

	const n = 20
	for i := 0; i < n; i++ {
		q.Push(func() {
			if concurrent.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			concurrent.Add(-1)
			done.Add(1)
		})
	}

	waitFor(t, func() bool { return done.Load() == n })

	if overlaps.Load() != 0 {
		t.Errorf("Observed %d overlapping executions on a single-threaded queue", overlaps.Load())
	}
}

// TestThreadedParallelism verifies a threaded queue fans its tasks out
// across workers
func TestThreadedParallelism(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	q := p.NewQueue(true)

	started := make(chan struct{}, 3)
	release := make(chan struct{})

	for i := 0; i < 3; i++ {
		q.Push(func() {
			started <- struct{}{}
			<-release
		})
	}

	// All three tasks must be running at once before any is released
	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatalf("Only %d tasks started concurrently, want 3", i)
		}
	}

	if got := p.InFlight(); got != 3 {
		t.Errorf("InFlight() = %d, want 3", got)
	}
	close(release)

	waitFor(t, func() bool { return p.InFlight() == 0 })
}

// TestDisableDropsPending verifies Disable stops intake and discards
// everything queued, while the in-flight task finishes
func TestDisableDropsPending(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()

	q := p.NewQueue(false)

	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int64

	q.Push(func() {
		ran.Add(1)
		close(started)
		<-release
	})
	<-started

	for i := 0; i < 5; i++ {
		q.Push(func() { ran.Add(1) })
	}
	if got := q.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5 pending", got)
	}

	q.Disable()

	if got := q.Len(); got != 0 {
		t.Errorf("Len() after Disable = %d, want 0", got)
	}
	if err := q.Push(func() {}); err != ErrQueueDisabled {
		t.Errorf("Push after Disable = %v, want ErrQueueDisabled", err)
	}

	close(release)
	p.Remove(q)

	if got := ran.Load(); got != 1 {
		t.Errorf("Expected only the in-flight task to run, got %d", got)
	}
}

// TestRemoveWaitsForInFlight verifies Pool.Remove blocks until the task a
// worker is already executing has finished
func TestRemoveWaitsForInFlight(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()

	q := p.NewQueue(true)

	started := make(chan struct{})
	var finished atomic.Bool

	q.Push(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})
	<-started

	p.Remove(q)

	if !finished.Load() {
		t.Error("Remove returned before the in-flight task finished")
	}
}

// TestStopDiscardsPending verifies Stop lets the executing task finish and
// never runs anything still pending
func TestStopDiscardsPending(t *testing.T) {
	p := NewPool(1)
	q := p.NewQueue(true)

	started := make(chan struct{})
	release := make(chan struct{})
	q.Push(func() {
		close(started)
		<-release
	})
	<-started

	// The single worker is busy, so these stay pending
	for i := 0; i < 3; i++ {
		q.Push(func() { t.Error("Discarded task was executed") })
	}

	stopDone := make(chan struct{})
	go func() {
		p.Stop()
		close(stopDone)
	}()

	waitFor(t, func() bool { return p.isStopped() })
	close(release)
	<-stopDone

	if got := p.TasksExecuted(); got != 1 {
		t.Errorf("TasksExecuted() = %d, want 1", got)
	}
	if err := q.Push(func() {}); err != ErrPoolStopped {
		t.Errorf("Push after Stop = %v, want ErrPoolStopped", err)
	}
}

// TestQueueRearm verifies a single-threaded queue keeps accepting work
// after it has fully drained
func TestQueueRearm(t *testing.T) {
	p := NewPool(2)
	defer p.Stop()

	q := p.NewQueue(false)

	var done atomic.Int64
	q.Push(func() { done.Add(1) })
	waitFor(t, func() bool { return done.Load() == 1 })

	q.Push(func() { done.Add(1) })
	waitFor(t, func() bool { return done.Load() == 2 })
}

func TestThreadedFlag(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	if p.NewQueue(false).Threaded() {
		t.Error("Expected single-threaded queue")
	}
	if !p.NewQueue(true).Threaded() {
		t.Error("Expected threaded queue")
	}
}
