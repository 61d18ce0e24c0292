// Package pacing provides the timer-driven event loop used to pace media
// emission. Each Loop runs every task on a single goroutine, so a task is
// never executed concurrently with itself or with any other task on the
// same loop.
package pacing

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// TimerFunc is a periodic task body. It returns the delay until its next
// invocation; a value <= 0 stops rescheduling.
type TimerFunc func() time.Duration

// Task is a handle to a scheduled timer task. The zero value is a valid,
// uncancelled handle.
type Task struct {
	cancelled atomic.Bool

	due   time.Time
	seq   uint64
	fn    TimerFunc
	index int
}

// Cancel prevents any further invocation of the task. It is safe to call
// from any goroutine and more than once.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

type timerHeap []*Task

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Loop is a single-goroutine scheduler for timer tasks and posted functions.
type Loop struct {
	name string

	mu     sync.Mutex
	timers timerHeap
	posted []func()
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewLoop creates and starts a loop.
func NewLoop(name string) *Loop {
	l := &Loop{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()

	logrus.WithFields(logrus.Fields{
		"function": "NewLoop",
		"loop":     name,
	}).Debug("Pacing loop started")

	return l
}

// Name returns the loop name given at construction.
func (l *Loop) Name() string {
	return l.name
}

// AddTimerTask schedules fn to run after delay and then again after each
// delay it returns. The returned Task cancels further runs.
func (l *Loop) AddTimerTask(delay time.Duration, fn TimerFunc) *Task {
	t := &Task{fn: fn}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		t.Cancel()
		return t
	}
	l.seq++
	t.seq = l.seq
	t.due = time.Now().Add(delay)
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.signal()
	return t
}

// Post runs fn once on the loop goroutine as soon as possible. Functions
// posted from the same goroutine run in posting order.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	l.signal()
}

// Close stops the loop and waits for the goroutine to exit. Pending tasks
// are dropped. Calling Close more than once is safe.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Loop.Close",
		"loop":     l.name,
	}).Debug("Pacing loop stopped")
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		posted, ready, wait := l.collect(time.Now())

		for _, fn := range posted {
			l.safeCall(func() time.Duration { fn(); return 0 })
		}
		for _, t := range ready {
			if t.Cancelled() {
				continue
			}
			next := l.safeCall(t.fn)
			if next > 0 && !t.Cancelled() {
				l.reschedule(t, next)
			}
		}
		if len(posted) > 0 || len(ready) > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if wait < 0 {
			wait = time.Hour
		}
		timer.Reset(wait)

		select {
		case <-l.done:
			return
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// collect pops posted functions and due timers. wait is the delay until the
// next timer, or -1 when none is scheduled.
func (l *Loop) collect(now time.Time) (posted []func(), ready []*Task, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	posted = l.posted
	l.posted = nil

	for len(l.timers) > 0 && !l.timers[0].due.After(now) {
		ready = append(ready, heap.Pop(&l.timers).(*Task))
	}

	wait = -1
	if len(l.timers) > 0 {
		wait = l.timers[0].due.Sub(now)
	}
	return posted, ready, wait
}

func (l *Loop) reschedule(t *Task, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.seq++
	t.seq = l.seq
	t.due = time.Now().Add(delay)
	heap.Push(&l.timers, t)
}

func (l *Loop) safeCall(fn TimerFunc) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Loop.run",
				"loop":     l.name,
				"panic":    fmt.Sprint(r),
			}).Error("Pacing task panicked, task dropped")
			next = 0
		}
	}()
	return fn()
}
