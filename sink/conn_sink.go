// Package sink contains event sinks bridging the relay core to transports.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pairchat/domain/event"
)

// ConnSink buffers server-push events for one transport connection. Consume
// is fire-and-forget within a small delivery budget: when the peer's writer
// cannot drain fast enough the frame is dropped, the sender is never
// backpressured. Dropped counts are exposed for telemetry.
type ConnSink struct {
	log     *slog.Logger
	events  chan event.Event
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped uint64
	onDrop  func()
}

func NewConnSink(log *slog.Logger, bufferSize int, timeout time.Duration) *ConnSink {
	return &ConnSink{
		log:     log,
		events:  make(chan event.Event, bufferSize),
		timeout: timeout,
	}
}

// OnDrop registers a callback fired for every dropped frame.
func (s *ConnSink) OnDrop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = fn
}

// Consume queues an event for the connection's writer. A full buffer that
// stays full past the delivery budget drops the event.
func (s *ConnSink) Consume(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	select {
	case s.events <- e:
		return nil
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.drop()
		return nil
	}
}

func (s *ConnSink) drop() {
	s.mu.Lock()
	s.dropped++
	fn := s.onDrop
	s.mu.Unlock()

	s.log.Warn("slow consumer, frame dropped")
	if fn != nil {
		fn()
	}
}

// Events is consumed by the connection's writer goroutine.
func (s *ConnSink) Events() <-chan event.Event {
	return s.events
}

// Dropped returns how many frames this connection lost.
func (s *ConnSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close makes subsequent Consume calls no-ops. It does not close the events
// channel; the writer drains what is already buffered and exits with the
// connection.
func (s *ConnSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
