// Package schedule runs one-shot delayed tasks against a clock.Clock.
//
// Tasks fire in due-time order; tasks due at the same instant fire in the
// order they were scheduled. A Queue can be driven by Run (real time) or by
// RunDue/Advance (virtual time in tests). Nothing is ever cancelled: stopping
// the run loop fires everything still pending.
package schedule

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-widget/internal/clock"
)

type task struct {
	due time.Time
	seq uint64
	fn  func()
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue is a delayed task queue. It is safe for concurrent use.
type Queue struct {
	clock clock.Clock

	mu      sync.Mutex
	tasks   taskHeap
	seq     uint64
	stopped bool
	wake    chan struct{}

	// exec serialises task execution so tasks never overlap.
	exec sync.Mutex
}

// New returns an empty queue reading time from c.
func New(c clock.Clock) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	return &Queue{clock: c, wake: make(chan struct{}, 1)}
}

// Schedule arranges for fn to run once, delay after now. After the run loop
// has stopped, fn runs immediately on the caller's goroutine.
func (q *Queue) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.execute(fn)
		return
	}
	q.seq++
	heap.Push(&q.tasks, &task{due: q.clock.Now().Add(delay), seq: q.seq, fn: fn})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of tasks that have not fired yet.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// popDue removes and returns the earliest task due at or before now.
func (q *Queue) popDue(now time.Time) *task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 || q.tasks[0].due.After(now) {
		return nil
	}
	return heap.Pop(&q.tasks).(*task)
}

// RunDue fires every task due at the clock's current time and returns how
// many ran.
func (q *Queue) RunDue() int {
	n := 0
	for {
		t := q.popDue(q.clock.Now())
		if t == nil {
			return n
		}
		q.execute(t.fn)
		n++
	}
}

type settable interface {
	Set(time.Time)
}

// Advance moves virtual time forward by d, firing tasks as their due time is
// reached. When the clock can be set (clock.Fake), it is positioned at each
// task's due time before the task runs so timestamps taken inside the task
// match the schedule.
func (q *Queue) Advance(d time.Duration) int {
	target := q.clock.Now().Add(d)
	fake, canSet := q.clock.(settable)
	n := 0
	for {
		t := q.popDue(target)
		if t == nil {
			break
		}
		if canSet && t.due.After(q.clock.Now()) {
			fake.Set(t.due)
		}
		q.execute(t.fn)
		n++
	}
	if canSet {
		fake.Set(target)
	}
	return n
}

// Run fires tasks in real time until ctx is done, then fires everything still
// pending in order and marks the queue stopped.
func (q *Queue) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer q.drain()

	for {
		q.RunDue()

		q.mu.Lock()
		var wait time.Duration = -1
		if len(q.tasks) > 0 {
			wait = q.tasks[0].due.Sub(q.clock.Now())
		}
		q.mu.Unlock()

		if wait == 0 || (wait < 0 && q.Pending() > 0) {
			continue
		}
		if wait > 0 {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
	}
}

// drain fires all pending tasks regardless of due time.
func (q *Queue) drain() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		t := heap.Pop(&q.tasks).(*task)
		q.mu.Unlock()
		q.execute(t.fn)
	}
}

func (q *Queue) execute(fn func()) {
	q.exec.Lock()
	defer q.exec.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduled_task_panic")
		}
	}()
	fn()
}
