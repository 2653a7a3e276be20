package workers

import (
	"context"
	"log/slog"

	"pairchat/contract"
	"pairchat/domain/event"
)

// TelemetryWorker fans observability events in from the relay and dispatches
// them to the registered handlers. Best effort only: the relay drops
// telemetry rather than blocking a connection, so handlers must tolerate gaps.
type TelemetryWorker struct {
	log      *slog.Logger
	events   <-chan event.Telemetry
	handlers []contract.TelemetryHandler
}

func NewTelemetryWorker(log *slog.Logger, events <-chan event.Telemetry,
	handlers ...contract.TelemetryHandler) *TelemetryWorker {
	return &TelemetryWorker{log: log, events: events, handlers: handlers}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry dispatch")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			for _, h := range w.handlers {
				h.Handle(evt)
			}
		}
	}
}
