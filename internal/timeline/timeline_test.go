package timeline_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/chatd/internal/timeline"
)

// collector gathers task results without racing the worker.
type collector struct {
	mu   sync.Mutex
	got  []int
	done chan struct{}
	want int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) record(v int) {
	c.mu.Lock()
	c.got = append(c.got, v)
	if len(c.got) == c.want {
		close(c.done)
	}
	c.mu.Unlock()
}

func (c *collector) wait(t *testing.T) []int {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.got...)
}

func TestTasksRunInScheduleOrder(t *testing.T) {
	tl := timeline.New(zerolog.Nop())
	go tl.Run()
	defer tl.Stop()

	c := newCollector(3)
	for i := 1; i <= 3; i++ {
		i := i
		tl.ScheduleNow(func() { c.record(i) })
	}
	assert.Equal(t, []int{1, 2, 3}, c.wait(t))
}

func TestDelayedTaskRunsAfterImmediate(t *testing.T) {
	tl := timeline.New(zerolog.Nop())
	go tl.Run()
	defer tl.Stop()

	c := newCollector(2)
	tl.ScheduleIn(50*time.Millisecond, func() { c.record(2) })
	tl.ScheduleNow(func() { c.record(1) })
	assert.Equal(t, []int{1, 2}, c.wait(t))
}

func TestTaskCanRescheduleItself(t *testing.T) {
	tl := timeline.New(zerolog.Nop())
	go tl.Run()
	defer tl.Stop()

	c := newCollector(3)
	runs := 0
	var tick func()
	tick = func() {
		runs++
		c.record(runs)
		if runs < 3 {
			tl.ScheduleIn(time.Millisecond, tick)
		}
	}
	tl.ScheduleNow(tick)
	assert.Equal(t, []int{1, 2, 3}, c.wait(t))
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	tl := timeline.New(zerolog.Nop())
	go tl.Run()
	defer tl.Stop()

	c := newCollector(1)
	tl.ScheduleNow(func() { panic("boom") })
	tl.ScheduleNow(func() { c.record(1) })
	assert.Equal(t, []int{1}, c.wait(t))
}

func TestStopWaitsForWorker(t *testing.T) {
	tl := timeline.New(zerolog.Nop())
	go tl.Run()

	c := newCollector(1)
	tl.ScheduleNow(func() { c.record(1) })
	c.wait(t)

	done := make(chan struct{})
	go func() {
		tl.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.True(t, true)
}
