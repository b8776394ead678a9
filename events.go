package goAuthClient

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the Client.
const (
	EventLogin          = "login"
	EventRegister       = "register"
	EventMFAVerify      = "mfa_verify"
	EventOTPVerify      = "otp_verify"
	EventMagicLink      = "magic_link_verify"
	EventOneTap         = "one_tap"
	EventLogout         = "logout"
	EventLogoutAll      = "logout_all"
	EventRefresh        = "refresh"
	EventSessionRestore = "session_restore"
)

var eventTypes = []string{
	EventLogin, EventRegister, EventMFAVerify, EventOTPVerify, EventMagicLink,
	EventOneTap, EventLogout, EventLogoutAll, EventRefresh, EventSessionRestore,
}

// AuthEvent records the outcome of one session operation.
type AuthEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventSink receives AuthEvents off the calling goroutine.
type EventSink interface {
	Emit(ctx context.Context, event AuthEvent)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuthEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan AuthEvent
}

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuthEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuthEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuthEvent {
	return s.events
}

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuthEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
}
