package event

import "pairchat/domain"

// Event is a server-push frame destined for a single connection's sink.
type Event interface {
	Room() string
}

// SessionAccepted greets a freshly accepted connection with its id.
type SessionAccepted struct {
	ConnectionID string
}

func (e SessionAccepted) Room() string { return "" }

// Authenticated confirms a validated credential back to the connection.
type Authenticated struct {
	UserID int64
}

func (e Authenticated) Room() string { return "" }

// ProblemReported carries a structured error back to the originating
// connection only. It is never relayed to peers.
type ProblemReported struct {
	Code   string
	Detail string
}

func (e ProblemReported) Room() string { return "" }

// HistoryLoaded carries the buffered log of a room, delivered once to a
// connection when presence-gated delivery fires.
type HistoryLoaded struct {
	RoomKey  string
	Messages []domain.Message
}

func (e HistoryLoaded) Room() string { return e.RoomKey }

// KeyExchangeReceived is relayed key material from the other room member.
type KeyExchangeReceived struct {
	RoomKey   string
	Sender    int64
	PublicKey []byte
}

func (e KeyExchangeReceived) Room() string { return e.RoomKey }

// CiphertextReceived is a live encrypted message from the other room member.
type CiphertextReceived struct {
	RoomKey    string
	Sender     int64
	Ciphertext []byte
	IV         []byte
	MAC        []byte
	Sequence   uint64
}

func (e CiphertextReceived) Room() string { return e.RoomKey }
