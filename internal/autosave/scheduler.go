package autosave

import (
	"sort"
	"sync"
	"time"
)

// Timer is the stoppable handle a Scheduler hands back.
type Timer interface {
	Stop() bool
}

// Scheduler abstracts deferred execution so debounce and retry timing
// can be driven manually in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// wallScheduler defers to the real clock.
type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewWallScheduler returns the production scheduler.
func NewWallScheduler() Scheduler { return wallScheduler{} }

// ManualScheduler queues callbacks on a virtual clock; Advance moves
// the clock and fires whatever came due. Callbacks run synchronously on
// the advancing goroutine.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	sched   *ManualScheduler
	at      time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{sched: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the virtual clock forward and runs every timer that
// came due, in firing order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTimer
	var rest []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && t.at <= s.now {
			due = append(due, t)
		} else if !t.stopped {
			rest = append(rest, t)
		}
	}
	s.timers = rest
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}
