package catchup

import (
	"sort"
	"sync/atomic"
	"time"
)

// Scheduler runs callbacks after a delay. Callbacks must run on the same
// goroutine as the message handlers.
type Scheduler interface {
	// Schedule runs fn after d. The returned function cancels fn if it has
	// not run yet.
	Schedule(d time.Duration, fn func()) (cancel func())
}

// LoopScheduler turns timers into events of an event loop, which must execute
// every function received from Events.
type LoopScheduler struct {
	ch   chan func()
	done chan struct{}
}

// NewLoopScheduler ...
func NewLoopScheduler() *LoopScheduler {
	return &LoopScheduler{
		ch:   make(chan func(), 64),
		done: make(chan struct{}),
	}
}

// Schedule implements the Scheduler interface.
func (s *LoopScheduler) Schedule(d time.Duration, fn func()) func() {
	var cancelled int32

	run := func() {
		// the timer may have fired before cancel was called
		if atomic.LoadInt32(&cancelled) == 0 {
			fn()
		}
	}

	t := time.AfterFunc(d, func() {
		select {
		case s.ch <- run:
		case <-s.done:
		}
	})

	return func() {
		atomic.StoreInt32(&cancelled, 1)
		t.Stop()
	}
}

// Events returns the channel of callbacks that are due.
func (s *LoopScheduler) Events() <-chan func() {
	return s.ch
}

// Close stops delivering callbacks.
func (s *LoopScheduler) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

type manualTask struct {
	due       time.Duration
	seq       int
	fn        func()
	cancelled bool
}

// ManualScheduler is a Scheduler whose clock only moves when Advance is
// called. Callbacks run synchronously inside Advance, in due order.
type ManualScheduler struct {
	now   time.Duration
	seq   int
	tasks []*manualTask
}

// NewManualScheduler ...
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule implements the Scheduler interface.
func (s *ManualScheduler) Schedule(d time.Duration, fn func()) func() {
	s.seq++
	task := &manualTask{
		due: s.now + d,
		seq: s.seq,
		fn:  fn,
	}
	s.tasks = append(s.tasks, task)
	return func() {
		task.cancelled = true
	}
}

// Advance moves the clock by d and runs every callback that becomes due,
// including callbacks scheduled by those callbacks. It returns the number of
// callbacks run.
func (s *ManualScheduler) Advance(d time.Duration) int {
	target := s.now + d
	ran := 0
	for {
		task := s.next(target)
		if task == nil {
			break
		}
		s.now = task.due
		task.fn()
		ran++
	}
	s.now = target
	return ran
}

func (s *ManualScheduler) next(limit time.Duration) *manualTask {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	s.tasks = live

	sort.Slice(s.tasks, func(i, j int) bool {
		if s.tasks[i].due != s.tasks[j].due {
			return s.tasks[i].due < s.tasks[j].due
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})

	if len(s.tasks) == 0 || s.tasks[0].due > limit {
		return nil
	}

	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	return task
}

// Pending returns the number of callbacks waiting to run.
func (s *ManualScheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Now returns the simulated time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	return s.now
}
