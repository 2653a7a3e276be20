package wire

// Envelope is the single frame shape on the wire. Payload decoding is
// deferred until Type is known.
type Envelope struct {
	Type    string     `cbor:"type"`
	Payload RawMessage `cbor:"payload,omitempty"`
}

// Client to server frame types.
const (
	TypeAuth            = "auth"
	TypeJoin            = "join"
	TypeLeave           = "leave"
	TypeSendKeyExchange = "send_key_exchange"
	TypeSendCiphertext  = "send_ciphertext"
)

// Server to client frame types.
const (
	TypeConnected          = "connected"
	TypeAuthenticated      = "authenticated"
	TypeLoadHistory        = "load_history"
	TypeReceiveKeyExchange = "receive_key_exchange"
	TypeReceiveCiphertext  = "receive_ciphertext"
	TypeError              = "error"
)

// AuthPayload carries the opaque credential issued by the authentication
// collaborator. The relay never interprets its format.
type AuthPayload struct {
	Token string `cbor:"token" validate:"required"`
}

// JoinPayload identifies the unordered pair the caller wants a room for.
// User ids are positive; gt=0 doubles as the required-field check since CBOR
// decodes an absent integer field to zero.
type JoinPayload struct {
	SelfID int64 `cbor:"self_id" validate:"gt=0"`
	PeerID int64 `cbor:"peer_id" validate:"gt=0,nefield=SelfID"`
}

type LeavePayload struct {
	SelfID int64 `cbor:"self_id" validate:"gt=0"`
	PeerID int64 `cbor:"peer_id" validate:"gt=0,nefield=SelfID"`
}

type KeyExchangePayload struct {
	Sender    int64  `cbor:"sender" validate:"gt=0"`
	Receiver  int64  `cbor:"receiver" validate:"gt=0,nefield=Sender"`
	PublicKey []byte `cbor:"public_key" validate:"required"`
}

type CiphertextPayload struct {
	Sender     int64  `cbor:"sender" validate:"gt=0"`
	Receiver   int64  `cbor:"receiver" validate:"gt=0,nefield=Sender"`
	Ciphertext []byte `cbor:"ciphertext" validate:"required"`
	IV         []byte `cbor:"iv" validate:"required"`
	MAC        []byte `cbor:"mac" validate:"required"`
}

type ConnectedPayload struct {
	ConnectionID string `cbor:"connection_id"`
}

type AuthenticatedPayload struct {
	UserID int64 `cbor:"user_id"`
}

type HistoryMessage struct {
	Sender     int64  `cbor:"sender"`
	Ciphertext []byte `cbor:"ciphertext"`
	IV         []byte `cbor:"iv"`
	MAC        []byte `cbor:"mac"`
	Sequence   uint64 `cbor:"sequence"`
}

type LoadHistoryPayload struct {
	Room     string           `cbor:"room"`
	Messages []HistoryMessage `cbor:"messages"`
}

type ReceiveKeyExchangePayload struct {
	Sender    int64  `cbor:"sender"`
	PublicKey []byte `cbor:"public_key"`
}

type ReceiveCiphertextPayload struct {
	Sender     int64  `cbor:"sender"`
	Ciphertext []byte `cbor:"ciphertext"`
	IV         []byte `cbor:"iv"`
	MAC        []byte `cbor:"mac"`
	Sequence   uint64 `cbor:"sequence"`
}

// ErrorPayload is reported back to the originating connection only and is
// never relayed to peers.
type ErrorPayload struct {
	Code   string `cbor:"code"`
	Detail string `cbor:"detail,omitempty"`
}
