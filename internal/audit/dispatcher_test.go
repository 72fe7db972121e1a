package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *memoryRecorder) RecordLogin(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	rec := &memoryRecorder{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, NewRecorderSink(rec, nil))

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{LoginType: "phone", Success: i%2 == 0})
	}
	d.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 5 {
		t.Fatalf("expected 5 events after close, got %d", len(rec.events))
	}

	d.Emit(context.Background(), Event{LoginType: "late"})
	if len(rec.events) != 5 {
		t.Fatal("closed dispatcher must drop events")
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) { <-block })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{LoginType: "email"})
	}
	if d.Dropped() == 0 || d.Stats().DroppedFailure == 0 {
		t.Fatal("expected drops with a blocked sink")
	}
	close(block)
	d.Close()
}

func TestFullBufferKeepsFailedAttemptsLonger(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sink := sinkFunc(func(context.Context, Event) {
		once.Do(func() { close(started) })
		<-release
	})
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, FailureWait: 5 * time.Second}, sink)

	d.Emit(context.Background(), Event{LoginType: "email"})
	<-started
	d.Emit(context.Background(), Event{LoginType: "email"})

	d.Emit(context.Background(), Event{LoginType: "email", Success: true})
	if s := d.Stats(); s.DroppedSuccess != 1 || s.DroppedFailure != 0 {
		t.Fatalf("expected the successful login to be dropped at once, got %+v", s)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	d.Emit(context.Background(), Event{LoginType: "phone", FailReason: "code mismatch"})
	d.Close()

	s := d.Stats()
	if s.Delivered != 3 || s.DroppedFailure != 0 {
		t.Fatalf("expected every failed attempt to be delivered, got %+v", s)
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one drop in total, got %d", d.Dropped())
	}
}

func TestEmitNormalizesEvents(t *testing.T) {
	rec := &memoryRecorder{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, NewRecorderSink(rec, nil))

	d.Emit(context.Background(), Event{LoginType: "email", FailReason: strings.Repeat("é", 200)})
	d.Emit(context.Background(), Event{LoginType: "email", Success: true, FailReason: "stale"})
	d.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	failed, ok := rec.events[0], rec.events[1]
	if len(failed.FailReason) > MaxFailReasonLen || !utf8.ValidString(failed.FailReason) {
		t.Fatalf("expected reason cut on a rune boundary, got %d bytes", len(failed.FailReason))
	}
	if failed.Timestamp.IsZero() {
		t.Fatal("expected a default timestamp")
	}
	if ok.FailReason != "" {
		t.Fatalf("expected successful login without a reason, got %q", ok.FailReason)
	}
}

func TestRecorderSinkSwallowsErrors(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("db down")}
	NewRecorderSink(rec, nil).Emit(context.Background(), Event{LoginType: "phone", Timestamp: time.Now()})
}

func TestChannelAndMultiSink(t *testing.T) {
	ch := NewChannelSink(2)
	rec := &memoryRecorder{}
	MultiSink{ch, NewRecorderSink(rec, nil)}.Emit(context.Background(), Event{LoginType: "wechat"})

	select {
	case e := <-ch.Events():
		if e.LoginType != "wechat" {
			t.Fatalf("unexpected event %+v", e)
		}
	default:
		t.Fatal("expected event on channel")
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected recorder to receive the event, got %d", len(rec.events))
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
