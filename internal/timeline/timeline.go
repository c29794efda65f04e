// Package timeline provides the server's single cooperative task queue.
// Exactly one worker drains the queue, running each task to completion
// before the next, so everything scheduled here (model mutations, journal
// appends, relay pulls) is serialized without any locking of the model.
package timeline

import (
	"container/heap"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of cooperative work. Tasks may re-schedule themselves.
type Task func()

type entry struct {
	deadline time.Time
	seq      uint64 // FIFO tiebreak for equal deadlines
	task     Task
}

type taskHeap []entry

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Timeline is a min-heap of deadline-keyed tasks drained by one worker.
// Schedule methods are safe to call from any goroutine (the accept loops
// and the worker itself both enqueue); task execution is strictly serial.
type Timeline struct {
	logger zerolog.Logger

	mu    sync.Mutex
	tasks taskHeap
	seq   uint64
	wake  chan struct{}
	done  chan struct{}
	stop  bool
}

// New creates a timeline. Call Run (usually on its own goroutine) to start
// draining.
func New(logger zerolog.Logger) *Timeline {
	return &Timeline{
		logger: logger.With().Str("component", "timeline").Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ScheduleNow enqueues task to run as soon as possible.
func (t *Timeline) ScheduleNow(task Task) {
	t.ScheduleIn(0, task)
}

// ScheduleIn enqueues task to run after at least d.
func (t *Timeline) ScheduleIn(d time.Duration, task Task) {
	t.mu.Lock()
	t.seq++
	heap.Push(&t.tasks, entry{deadline: time.Now().Add(d), seq: t.seq, task: task})
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until Stop is called. Each task runs to completion;
// panics are recovered and logged so one bad task cannot take down the
// worker.
func (t *Timeline) Run() {
	defer close(t.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		t.mu.Lock()
		if t.stop {
			t.mu.Unlock()
			return
		}
		if t.tasks.Len() == 0 {
			t.mu.Unlock()
			<-t.wake
			continue
		}
		next := t.tasks[0]
		wait := time.Until(next.deadline)
		if wait > 0 {
			t.mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-t.wake:
			case <-timer.C:
			}
			continue
		}
		heap.Pop(&t.tasks)
		t.mu.Unlock()

		t.runTask(next.task)
	}
}

func (t *Timeline) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("Recovered panic in timeline task")
		}
	}()
	task()
}

// Len reports how many tasks are queued.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tasks.Len()
}

// Stop makes Run return after the task in flight (if any) completes.
// Queued tasks are abandoned; there is no cancellation of a running task.
func (t *Timeline) Stop() {
	t.mu.Lock()
	t.stop = true
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
	<-t.done
}
