package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced [Clock] and [Scheduler].
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

type fakeTask struct {
	owner    *Fake
	interval time.Duration
	next     time.Time
	fn       func()
	stopped  bool
}

// NewFake returns a fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set jumps to t without firing tasks.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves virtual time forward by d, running every task whose deadline falls
// inside the window in deadline order. Tasks run on the calling goroutine with the
// clock already set to their deadline.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTask
		for _, t := range f.tasks {
			if t.stopped || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

// Every registers a recurring task whose first run is one interval from now.
func (f *Fake) Every(interval time.Duration, fn func()) Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTask{owner: f, interval: interval, fn: fn}
	if interval <= 0 || fn == nil {
		t.stopped = true
		return t
	}
	t.next = f.now.Add(interval)
	f.tasks = append(f.tasks, t)
	return t
}

// ActiveTasks reports how many registered tasks have not been stopped.
func (f *Fake) ActiveTasks() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTask) Stop() {
	f := t.owner
	f.mu.Lock()
	defer f.mu.Unlock()

	t.stopped = true
	kept := f.tasks[:0]
	for _, other := range f.tasks {
		if other != t {
			kept = append(kept, other)
		}
	}
	f.tasks = kept
}
