//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"pairchat/domain/event"
)

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one transport connection.
// Consume must not block the caller beyond its configured delivery budget;
// the relay is fire-and-forget toward slow peers.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// TokenValidator is the narrow interface to the authentication collaborator.
// The relay treats the token as opaque and only consumes the resulting user id.
type TokenValidator interface {
	Validate(token string) (int64, error)
}

// TelemetryHandler reacts to observability events fanned in by the telemetry worker.
type TelemetryHandler interface {
	Handle(t event.Telemetry)
}
