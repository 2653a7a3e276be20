package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_Stream_Round_Trip(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	// Given two envelopes written back to back on one stream
	payload, err := Marshal(JoinPayload{SelfID: 1, PeerID: 2})
	req.NoError(err)
	enc := NewEncoder(&buf)
	req.NoError(enc.Encode(Envelope{Type: TypeJoin, Payload: payload}))
	req.NoError(enc.Encode(Envelope{Type: TypeLeave, Payload: payload}))

	// When decoding them one by one
	dec := NewDecoder(&buf)
	var first, second Envelope
	req.NoError(dec.Decode(&first))
	req.NoError(dec.Decode(&second))

	// Then frame boundaries and payloads survive intact
	req.Equal(TypeJoin, first.Type)
	req.Equal(TypeLeave, second.Type)

	var join JoinPayload
	req.NoError(Unmarshal(first.Payload, &join))
	req.Equal(int64(1), join.SelfID)
	req.Equal(int64(2), join.PeerID)
}

func TestMarshal_Is_Deterministic(t *testing.T) {
	req := require.New(t)
	msg := CiphertextPayload{
		Sender:     1,
		Receiver:   2,
		Ciphertext: []byte("ct"),
		IV:         []byte("iv"),
		MAC:        []byte("mac"),
	}

	a, err := Marshal(msg)
	req.NoError(err)
	b, err := Marshal(msg)
	req.NoError(err)
	req.Equal(a, b)
}

func TestUnmarshal_Ignores_Unknown_Fields(t *testing.T) {
	req := require.New(t)

	// A newer client may send fields this version does not know
	raw, err := Marshal(map[string]any{
		"self_id": 1,
		"peer_id": 2,
		"extra":   "ignored",
	})
	req.NoError(err)

	var join JoinPayload
	req.NoError(Unmarshal(raw, &join))
	req.Equal(int64(1), join.SelfID)
	req.Equal(int64(2), join.PeerID)
}

func TestUnmarshal_Rejects_Wrong_Types(t *testing.T) {
	req := require.New(t)

	raw, err := Marshal(map[string]any{"self_id": "not-a-number"})
	req.NoError(err)

	var join JoinPayload
	req.Error(Unmarshal(raw, &join))
}
