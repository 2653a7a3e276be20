// Package repositories defines the storage contracts of the relay.
// The history store is ephemeral by design: its lifetime is exactly the
// lifetime of non-empty room membership. The interface exists so a durable
// backend could be substituted without touching relay logic.
package repositories

// StoredMessage is the storage shape of a buffered room message.
type StoredMessage struct {
	Sender     int64  `cbor:"sender"`
	Ciphertext []byte `cbor:"ciphertext"`
	IV         []byte `cbor:"iv"`
	MAC        []byte `cbor:"mac"`
	Sequence   uint64 `cbor:"sequence"`
}

// HistoryRepository stores the ordered message log of each room.
// Callers serialize access per room key; implementations only need to be
// safe for concurrent use across distinct keys.
type HistoryRepository interface {
	// Append stores a message under its room. The sequence number is assigned
	// by the room before the call.
	Append(roomKey string, msg StoredMessage) error
	// Snapshot returns a copy of the buffered log in insertion order.
	Snapshot(roomKey string) ([]StoredMessage, error)
	// Destroy removes every message of the room. Invoked only from room
	// teardown, inside the room's critical section.
	Destroy(roomKey string) error
}
