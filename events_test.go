package goAuthClient

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goAuthClient/tokens"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuthEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuthEvent) {
	<-s.gate
}

func nextEvent(t *testing.T, sink *ChannelSink) AuthEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected an auth event")
		return AuthEvent{}
	}
}

func TestEventsDisabledByDefault(t *testing.T) {
	c, _, _ := buildTestClient(t, nil)
	mustInitialize(t, c)

	if c.events != nil {
		t.Fatal("expected no dispatcher when events are disabled")
	}
	if c.DroppedEvents() != 0 {
		t.Fatal("expected zero dropped events")
	}
}

func TestLoginEmitsEvent(t *testing.T) {
	sink := NewChannelSink(8)
	c, _, _ := buildTestClient(t, func(b *Builder) { b.WithEventSink(sink) })
	mustInitialize(t, c)

	if _, err := c.Login(context.Background(), Credentials{Email: "alice@acme.com", Password: "secret-pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	ev := nextEvent(t, sink)
	if ev.EventType != EventLogin || !ev.Success || ev.UserID != "u-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestEventsCarryNoSecrets(t *testing.T) {
	sink := NewChannelSink(16)
	c, fb, _ := buildTestClient(t, func(b *Builder) { b.WithEventSink(sink) })
	mustInitialize(t, c)
	ctx := context.Background()

	const password = "correct-password-123"
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: password}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	pair, _ := c.TokenManager().Tokens(ctx)
	fb.logoutErr = errBackendDown
	_ = c.Logout(ctx)

	needles := []string{password, pair.AccessToken, pair.RefreshToken}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, sink)
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("secret leaked in event error: %+v", ev)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("secret leaked in event metadata: %+v", ev)
				}
			}
		}
	}
}

func TestFailedRefreshEmitsEvent(t *testing.T) {
	sink := NewChannelSink(8)
	c, fb, _ := buildTestClient(t, func(b *Builder) { b.WithEventSink(sink) })
	mustInitialize(t, c)
	ctx := context.Background()
	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_ = nextEvent(t, sink)

	fb.refresh = func(string) (tokens.Pair, error) { return tokens.Pair{}, errBackendDown }
	_, _ = c.RefreshToken(ctx)

	ev := nextEvent(t, sink)
	if ev.EventType != EventRefresh || ev.Success || ev.Error == "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestEventBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestEventBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuthEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestEventDispatcherCloseFlushesAndIsIdempotent(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink, nil)

	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e2"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuthEvent{EventType: "e3"})

	if got := sink.count.Load(); got != 2 {
		t.Fatalf("expected 2 delivered events, got %d", got)
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuthEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLogin,
		UserID:    "u1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuthEvent{EventType: EventLogout, UserID: "u1", Success: true})

	out := buf.String()
	if !strings.Contains(out, `"event_type":"login"`) || !strings.Contains(out, `"user_id":"u1"`) {
		t.Fatalf("unexpected output %q", out)
	}
	if got := strings.Count(out, "\n"); got != 2 {
		t.Fatalf("expected 2 lines, got %d", got)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func TestEventDispatcherDeliversOnlySelectedTypes(t *testing.T) {
	sink := NewChannelSink(8)
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 8,
		Types:      []string{EventLogout},
	}, sink, nil)

	dispatcher.Emit(context.Background(), AuthEvent{EventType: EventLogin})
	dispatcher.Emit(context.Background(), AuthEvent{EventType: EventLogout})
	dispatcher.Close()

	if ev := nextEvent(t, sink); ev.EventType != EventLogout {
		t.Fatalf("expected logout event, got %+v", ev)
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
	if dispatcher.Dropped() != 0 {
		t.Fatal("filtered events are not drops")
	}
}

func TestEventDispatcherCloseGivesUpAfterFlushTimeout(t *testing.T) {
	sink := newGateSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:      true,
		BufferSize:   4,
		DropIfFull:   true,
		FlushTimeout: 50 * time.Millisecond,
	}, sink, nil)

	for i := 0; i < 3; i++ {
		dispatcher.Emit(context.Background(), AuthEvent{EventType: EventRefresh})
	}

	start := time.Now()
	dispatcher.Close()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Close waited %s on a stuck sink", elapsed)
	}

	close(sink.gate)
	deadline := time.Now().Add(2 * time.Second)
	for dispatcher.Dropped() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := dispatcher.Dropped(); got != 2 {
		t.Fatalf("expected the 2 undelivered events counted as dropped, got %d", got)
	}
}

func TestClientEventTypesFilter(t *testing.T) {
	sink := NewChannelSink(8)
	cfg := DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.Types = []string{EventLogout}
	c, _, _ := buildTestClient(t, func(b *Builder) { b.WithConfig(cfg).WithEventSink(sink) })
	mustInitialize(t, c)
	ctx := context.Background()

	if _, err := c.Login(ctx, Credentials{Email: "alice@acme.com", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if ev := nextEvent(t, sink); ev.EventType != EventLogout {
		t.Fatalf("expected only logout events, got %+v", ev)
	}
}
