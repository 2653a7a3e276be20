package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairchat/domain/event"
)

func TestConnSink_Buffers_Until_Drained(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	sink := NewConnSink(slog.Default(), 2, 10*time.Millisecond)

	// Given two queued events
	req.NoError(sink.Consume(ctx, event.Authenticated{UserID: 1}))
	req.NoError(sink.Consume(ctx, event.Authenticated{UserID: 2}))

	// Then the writer drains them in order
	first := <-sink.Events()
	second := <-sink.Events()
	req.Equal(event.Authenticated{UserID: 1}, first)
	req.Equal(event.Authenticated{UserID: 2}, second)
	req.Zero(sink.Dropped())
}

func TestConnSink_Drops_On_Slow_Consumer(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	sink := NewConnSink(slog.Default(), 1, 5*time.Millisecond)

	var notified int
	sink.OnDrop(func() { notified++ })

	// Given a full buffer that nobody drains
	req.NoError(sink.Consume(ctx, event.Authenticated{UserID: 1}))

	// When the delivery budget elapses
	req.NoError(sink.Consume(ctx, event.Authenticated{UserID: 2}))

	// Then the frame is dropped, counted and reported
	req.Equal(uint64(1), sink.Dropped())
	req.Equal(1, notified)

	// The sender was never blocked: the first event is still deliverable
	req.Equal(event.Authenticated{UserID: 1}, <-sink.Events())
}

func TestConnSink_Consume_Honors_Context(t *testing.T) {
	req := require.New(t)
	sink := NewConnSink(slog.Default(), 1, time.Minute)
	req.NoError(sink.Consume(context.Background(), event.Authenticated{UserID: 1}))

	// A canceled context unblocks a waiting Consume before the budget elapses
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Consume(ctx, event.Authenticated{UserID: 2})
	req.ErrorIs(err, context.Canceled)
	req.Zero(sink.Dropped())
}

func TestConnSink_Close_Makes_Consume_A_Noop(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	sink := NewConnSink(slog.Default(), 1, time.Minute)

	sink.Close()
	req.NoError(sink.Consume(ctx, event.Authenticated{UserID: 1}))

	select {
	case e := <-sink.Events():
		req.Failf("unexpected event", "got %v after close", e)
	default:
	}
}
