package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// MaxFailReasonLen bounds FailReason to the width of the login_logs column.
const MaxFailReasonLen = 255

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards successful logins when the buffer is full instead
	// of blocking the login. Failed attempts first wait up to FailureWait
	// for room, since they are the records lockout investigations rely on.
	DropIfFull  bool
	FailureWait time.Duration
	// SinkTimeout bounds each delivery. Zero means no bound.
	SinkTimeout time.Duration
}

// Stats counts what happened to emitted login events.
type Stats struct {
	Delivered      uint64
	DroppedSuccess uint64
	DroppedFailure uint64
}

// Dispatcher relays login events to a sink from one background goroutine.
type Dispatcher struct {
	cfg  Config
	sink Sink
	now  func() time.Time

	queue    chan Event
	stopping chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	delivered      atomic.Uint64
	droppedSuccess atomic.Uint64
	droppedFailure atomic.Uint64
}

// NewDispatcher starts a Dispatcher. It returns nil when cfg is disabled;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		now:      time.Now,
		queue:    make(chan Event, cfg.BufferSize),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stopping:
			// Emit no longer enqueues; whatever is buffered is final.
			for n := len(d.queue); n > 0; n-- {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx := context.Background()
	if d.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

// normalize stamps the event and trims the failure reason so every sink
// sees a row the login_logs table can store.
func (d *Dispatcher) normalize(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}
	if event.Success {
		event.FailReason = ""
		return event
	}
	if len(event.FailReason) > MaxFailReasonLen {
		cut := MaxFailReasonLen
		for cut > 0 && !utf8.RuneStart(event.FailReason[cut]) {
			cut--
		}
		event.FailReason = event.FailReason[:cut]
	}
	return event
}

// Emit queues a login event. With DropIfFull a full buffer drops a
// successful login at once and a failed one after FailureWait; otherwise
// Emit waits for room or for ctx to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	select {
	case <-d.stopping:
		return
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = d.normalize(event)

	select {
	case d.queue <- event:
		return
	case <-d.stopping:
		return
	default:
	}

	var expired <-chan time.Time
	if d.cfg.DropIfFull {
		if event.Success || d.cfg.FailureWait <= 0 {
			d.countDrop(event)
			return
		}
		timer := time.NewTimer(d.cfg.FailureWait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case d.queue <- event:
	case <-expired:
		d.countDrop(event)
	case <-ctx.Done():
		d.countDrop(event)
	case <-d.stopping:
	}
}

func (d *Dispatcher) countDrop(event Event) {
	if event.Success {
		d.droppedSuccess.Add(1)
		return
	}
	d.droppedFailure.Add(1)
}

// Close stops accepting events and returns once the buffered ones reached
// the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stopping) })
	<-d.stopped
}

// Stats returns delivery and drop counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered:      d.delivered.Load(),
		DroppedSuccess: d.droppedSuccess.Load(),
		DroppedFailure: d.droppedFailure.Load(),
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	s := d.Stats()
	return s.DroppedSuccess + s.DroppedFailure
}
