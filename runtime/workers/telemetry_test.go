package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pairchat/domain/event"
	"pairchat/mocks"
)

func TestTelemetryWorker_Dispatches_To_All_Handlers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evt := event.Telemetry{Type: event.CiphertextRelayed, RoomKey: "room_1_2"}
	done := make(chan struct{})

	first := mocks.NewMockTelemetryHandler(ctrl)
	second := mocks.NewMockTelemetryHandler(ctrl)
	first.EXPECT().Handle(evt).Times(1)
	second.EXPECT().Handle(evt).Do(func(event.Telemetry) { close(done) }).Times(1)

	events := make(chan event.Telemetry, 1)
	worker := NewTelemetryWorker(slog.Default(), events, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When one event is emitted
	events <- evt

	// Then every handler observed it
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("handlers should have been invoked")
	}
}

func TestTelemetryWorker_Stops_On_Closed_Channel(t *testing.T) {
	req := require.New(t)

	events := make(chan event.Telemetry)
	worker := NewTelemetryWorker(slog.Default(), events)

	done := make(chan struct{})
	go func() {
		_ = worker.Run(context.Background())
		close(done)
	}()

	close(events)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		req.Fail("worker should stop when the event channel closes")
	}
}
