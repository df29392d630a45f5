package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event records one account change attempt.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	RealmID   string            `json:"realm_id,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// MarshalZerologObject lets an Event be logged as a nested object.
func (e Event) MarshalZerologObject(z *zerolog.Event) {
	z.Str("id", e.ID).
		Str("type", e.Type).
		Time("timestamp", e.Timestamp).
		Bool("success", e.Success)
	for _, f := range [...]struct{ k, v string }{
		{"realm_id", e.RealmID},
		{"client_id", e.ClientID},
		{"user_id", e.UserID},
		{"session_id", e.SessionID},
		{"ip", e.IP},
		{"error", e.Error},
	} {
		if f.v != "" {
			z.Str(f.k, f.v)
		}
	}
	if len(e.Details) > 0 {
		details := zerolog.Dict()
		for k, v := range e.Details {
			details.Str(k, v)
		}
		z.Dict("details", details)
	}
}

// Sink consumes events. Implementations must be safe for use by the
// dispatcher goroutine alongside direct callers.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink exposes events on a buffered channel, mostly for tests.
type ChannelSink chan Event

func NewChannelSink(buffer int) ChannelSink {
	return make(ChannelSink, max(buffer, 1))
}

// Emit blocks until the event is read or ctx ends.
func (s ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s <- event:
	case <-ctx.Done():
	}
}

func (s ChannelSink) Events() <-chan Event { return s }

// JSONWriterSink appends newline-delimited JSON to w.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// LogSink logs events through zerolog: failures at warn, the rest at info.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "account-events").Logger()}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	level := zerolog.InfoLevel
	if !event.Success {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).Object("event", event).Msg(event.Type)
}
