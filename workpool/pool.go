// Package workpool provides a bounded, prioritized worker pool for short
// fire-and-forget tasks such as read-ahead of frames from a frame source.
package workpool

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolFull is returned when the pool already holds its maximum number
	// of pending and running tasks.
	ErrPoolFull = errors.New("worker pool is full")

	// ErrNilTask is returned when submitting a nil function.
	ErrNilTask = errors.New("task function cannot be nil")
)

// DefaultPriority is the priority used for ordinary read-ahead work.
const DefaultPriority = 100

type task struct {
	priority int
	seq      uint64
	fn       func()
}

// taskHeap orders by priority (higher first), then submission order.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Pool runs submitted tasks on a fixed set of worker goroutines.
//
// The number of tasks that may be queued or running at once is bounded by
// the capacity given to New; Submit fails fast with ErrPoolFull beyond it.
// It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   taskHeap
	seq     uint64
	closed  bool
	slots   *semaphore.Weighted
	workers int
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers and task capacity.
func New(workers, capacity int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if capacity < workers {
		return nil, fmt.Errorf("capacity %d must be at least the worker count %d", capacity, workers)
	}

	p := &Pool{
		slots:   semaphore.NewWeighted(int64(capacity)),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"function": "workpool.New",
		"workers":  workers,
		"capacity": capacity,
	}).Debug("Worker pool started")

	return p, nil
}

// Submit queues fn for execution. The call never waits for fn to run.
func (p *Pool) Submit(priority int, fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	if !p.slots.TryAcquire(1) {
		return ErrPoolFull
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		return ErrPoolClosed
	}
	p.seq++
	heap.Push(&p.tasks, &task{priority: priority, seq: p.seq, fn: fn})
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Close stops accepting tasks, runs what is already queued and waits for the
// workers to exit. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Pool.Close",
	}).Debug("Worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		t := heap.Pop(&p.tasks).(*task)
		p.mu.Unlock()

		p.run(id, t)
		p.slots.Release(1)
	}
}

func (p *Pool) run(id int, t *task) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Pool.run",
				"worker":   id,
				"priority": t.priority,
				"panic":    fmt.Sprint(r),
			}).Error("Task panicked")
		}
	}()
	t.fn()
}
