// Package domain contains core concepts of the pairwise relay.
// This file defines the opaque payloads moving through the relay.
// The relay never inspects or validates cryptographic content.
package domain

// Message is an encrypted chat message as buffered in a room's history.
// Ciphertext, IV and MAC are opaque byte strings produced by the clients;
// Sequence is assigned by the room at append time.
type Message struct {
	Sender     int64
	Ciphertext []byte
	IV         []byte
	MAC        []byte
	Sequence   uint64
}

// KeyExchange is session-establishment material relayed transiently between
// the two members of a room. It is never buffered in history.
type KeyExchange struct {
	Sender    int64
	Receiver  int64
	PublicKey []byte
}
