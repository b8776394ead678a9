package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Task is a handle to a recurring job started by a [Scheduler].
type Task interface {
	// Stop cancels future runs. It is safe to call more than once.
	Stop()
}

// Scheduler runs fn every interval until the returned [Task] is stopped.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// Real is the wall-clock implementation of [Clock] and [Scheduler].
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time {
	return time.Now()
}

// Every starts a ticker goroutine. A run that is still executing when the next tick
// arrives delays that tick rather than overlapping it.
func (Real) Every(interval time.Duration, fn func()) Task {
	t := &realTask{
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if interval <= 0 || fn == nil {
		close(t.stopped)
		t.once.Do(func() { close(t.done) })
		return t
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(t.stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type realTask struct {
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

// Stop signals the ticker goroutine and waits for it to exit.
func (t *realTask) Stop() {
	t.once.Do(func() { close(t.done) })
	<-t.stopped
}
