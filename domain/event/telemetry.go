package event

import "time"

type TelemetryType string

const (
	SessionOpened      TelemetryType = "session_opened"
	SessionClosed      TelemetryType = "session_closed"
	RoomCreated        TelemetryType = "room_created"
	RoomDeleted        TelemetryType = "room_deleted"
	HistoryDelivered   TelemetryType = "history_delivered"
	KeyExchangeRelayed TelemetryType = "key_exchange_relayed"
	CiphertextRelayed  TelemetryType = "ciphertext_relayed"
	FrameDropped       TelemetryType = "frame_dropped"
)

// Telemetry is an observability side-channel event. Delivery is best effort;
// the relay drops telemetry rather than blocking a connection.
type Telemetry struct {
	Type    TelemetryType
	RoomKey string
	At      time.Time
}
