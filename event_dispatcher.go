package goAuthClient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// eventDispatcher hands AuthEvents to the sink on one goroutine so a slow sink never
// stalls a session transition. Events whose type is not selected are discarded before
// they are queued.
type eventDispatcher struct {
	sink         EventSink
	queue        chan AuthEvent
	types        map[string]struct{}
	block        bool
	flushTimeout time.Duration
	logger       *slog.Logger

	// mu keeps senders off queue once Close has closed it. closing releases senders
	// blocked on a full queue so Close can take mu.
	mu          sync.RWMutex
	closed      bool
	closing     chan struct{}
	closingOnce sync.Once
	delivered   chan struct{}

	dropped   atomic.Uint64
	abandoned atomic.Bool
}

func newEventDispatcher(cfg EventsConfig, sink EventSink, logger *slog.Logger) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &eventDispatcher{
		sink:         sink,
		queue:        make(chan AuthEvent, max(cfg.BufferSize, 1)),
		block:        !cfg.DropIfFull,
		flushTimeout: cfg.FlushTimeout,
		logger:       logger,
		closing:      make(chan struct{}),
		delivered:    make(chan struct{}),
	}
	if len(cfg.Types) > 0 {
		d.types = make(map[string]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			d.types[t] = struct{}{}
		}
	}

	go d.deliver()
	return d
}

func (d *eventDispatcher) deliver() {
	defer close(d.delivered)
	for ev := range d.queue {
		if d.abandoned.Load() {
			d.dropped.Add(1)
			continue
		}
		d.sink.Emit(context.Background(), ev)
	}
}

func (d *eventDispatcher) selected(eventType string) bool {
	if d.types == nil {
		return true
	}
	_, ok := d.types[eventType]
	return ok
}

// Emit queues ev. With DropIfFull a full queue drops it; otherwise Emit waits for room,
// for ctx, or for Close.
func (d *eventDispatcher) Emit(ctx context.Context, ev AuthEvent) {
	if d == nil || !d.selected(ev.EventType) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.block {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.closing:
	}
}

// Close stops accepting events and waits up to FlushTimeout for queued ones to reach the
// sink. Events still queued after that are counted as dropped. Zero waits indefinitely.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closingOnce.Do(func() { close(d.closing) })

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	if d.flushTimeout <= 0 {
		<-d.delivered
		return
	}
	timer := time.NewTimer(d.flushTimeout)
	defer timer.Stop()
	select {
	case <-d.delivered:
	case <-timer.C:
		d.abandoned.Store(true)
		if d.logger != nil {
			d.logger.Warn("goAuthClient: event flush timed out", "pending", len(d.queue))
		}
	}
}

func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
