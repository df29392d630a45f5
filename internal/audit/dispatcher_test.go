package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSink struct {
	n atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) { s.n.Add(1) }

// blockedSink holds every Emit until release is closed.
type blockedSink struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockedSink() *blockedSink {
	return &blockedSink{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *blockedSink) Emit(context.Context, Event) {
	s.entered <- struct{}{}
	<-s.release
}

func TestNilDispatcherIsInert(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{Type: "update_password"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher reported activity")
	}
}

func TestCloseDeliversQueuedEvents(t *testing.T) {
	sink := &countingSink{}
	d := New(Options{Buffer: 32, Block: true}, sink)

	for range 20 {
		d.Emit(context.Background(), Event{Type: "update_totp"})
	}
	d.Close()
	d.Close()

	if got := sink.n.Load(); got != 20 {
		t.Fatalf("sink saw %d events, want 20", got)
	}
	if got := d.Delivered(); got != 20 {
		t.Fatalf("delivered = %d, want 20", got)
	}

	d.Emit(context.Background(), Event{Type: "late"})
	if got := sink.n.Load(); got != 20 {
		t.Fatalf("event after close reached sink, total %d", got)
	}
}

func TestFullQueueDropsWhenNotBlocking(t *testing.T) {
	sink := newBlockedSink()
	d := New(Options{Buffer: 1}, sink)

	d.Emit(context.Background(), Event{Type: "a"})
	<-sink.entered // worker holds the first event
	d.Emit(context.Background(), Event{Type: "b"})
	for range 5 {
		d.Emit(context.Background(), Event{Type: "c"})
	}
	if got := d.Dropped(); got != 5 {
		t.Fatalf("dropped = %d, want 5", got)
	}

	close(sink.release)
	d.Close()
	if got := d.Delivered(); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
}

func TestBlockingEmitGivesUpWithContext(t *testing.T) {
	sink := newBlockedSink()
	d := New(Options{Buffer: 1, Block: true}, sink)

	d.Emit(context.Background(), Event{Type: "a"})
	<-sink.entered
	d.Emit(context.Background(), Event{Type: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Type: "c"})
	if got := d.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	close(sink.release)
	d.Close()
}

func TestEmitStampsIDAndTimestamp(t *testing.T) {
	sink := NewChannelSink(1)
	d := New(Options{Buffer: 1}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Type: "remove_totp"})
	ev := <-sink.Events()
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("event not stamped: %+v", ev)
	}

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d.Emit(context.Background(), Event{ID: "keep", Timestamp: fixed})
	ev = <-sink.Events()
	if ev.ID != "keep" || !ev.Timestamp.Equal(fixed) {
		t.Fatalf("caller values overwritten: %+v", ev)
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "e1", Type: "update_password", RealmID: "demo", Success: true})
	sink.Emit(context.Background(), Event{ID: "e2", Type: "update_password_error", Error: "invalid_user_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.ID != "e2" || decoded.Error != "invalid_user_credentials" || decoded.Success {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestLogSinkLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Emit(context.Background(), Event{ID: "e1", Type: "update_totp", Success: true})
	sink.Emit(context.Background(), Event{ID: "e2", Type: "update_totp_error", UserID: "u-1", Error: "invalid_totp", Details: map[string]string{"reason": "code"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"info"`) || strings.Contains(lines[0], `"user_id"`) {
		t.Fatalf("success line: %s", lines[0])
	}
	for _, want := range []string{`"level":"warn"`, `"user_id":"u-1"`, `"reason":"code"`, `"message":"update_totp_error"`} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("failure line missing %s: %s", want, lines[1])
		}
	}
}
