package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event is one login attempt, successful or not.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	LoginType  string    `json:"login_type"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Success    bool      `json:"success"`
	FailReason string    `json:"fail_reason,omitempty"`
}

// Sink receives emitted login events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Recorder persists login events, typically into the login_logs table.
type Recorder interface {
	RecordLogin(ctx context.Context, event Event) error
}

// RecorderSink adapts a Recorder to a Sink and logs write failures.
type RecorderSink struct {
	recorder Recorder
	logger   *zap.Logger
}

func NewRecorderSink(recorder Recorder, logger *zap.Logger) *RecorderSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecorderSink{recorder: recorder, logger: logger}
}

func (s *RecorderSink) Emit(ctx context.Context, event Event) {
	if err := s.recorder.RecordLogin(ctx, event); err != nil {
		s.logger.Warn("record login event", zap.String("login_type", event.LoginType), zap.Error(err))
	}
}

// LoggerSink writes each event as a structured log line.
type LoggerSink struct {
	logger *zap.Logger
}

func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(_ context.Context, event Event) {
	s.logger.Info("login",
		zap.Time("at", event.Timestamp),
		zap.Int64("user_id", event.UserID),
		zap.String("username", event.Username),
		zap.String("login_type", event.LoginType),
		zap.String("ip", event.IP),
		zap.Bool("success", event.Success),
		zap.String("fail_reason", event.FailReason),
	)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}
