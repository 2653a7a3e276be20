package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/errors"
)

// captureSink records every event pushed to one connection.
type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSink) Consume(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *captureSink) histories() []event.HistoryLoaded {
	var res []event.HistoryLoaded
	for _, e := range s.all() {
		if h, ok := e.(event.HistoryLoaded); ok {
			res = append(res, h)
		}
	}
	return res
}

func (s *captureSink) ciphertexts() []event.CiphertextReceived {
	var res []event.CiphertextReceived
	for _, e := range s.all() {
		if c, ok := e.(event.CiphertextReceived); ok {
			res = append(res, c)
		}
	}
	return res
}

func newTestRelay() *Relay {
	return NewRelay(slog.Default(), NewSessionRegistry(), NewRoomRegistry(newMemoryHistory()), nil)
}

func ciphertext(sender int64, content string) domain.Message {
	return domain.Message{
		Sender:     sender,
		Ciphertext: []byte(content),
		IV:         []byte("iv"),
		MAC:        []byte("mac"),
	}
}

func TestRelay_Buffered_Message_Released_When_Pair_Completes(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()
	sinkA, sinkB := &captureSink{}, &captureSink{}

	// Given user 1 alone in the room with one sent message
	relay.Connect("conn-a", sinkA)
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))
	req.NoError(relay.RelayCiphertext(ctx, ciphertext(1, "C1"), 2))

	// The absent peer received nothing live
	req.Empty(sinkB.all())

	// When user 2 connects and joins
	relay.Connect("conn-b", sinkB)
	req.NoError(relay.Join(ctx, "conn-b", 2, 1))

	// Then the buffered log reaches the joining connection only
	histories := sinkB.histories()
	req.Len(histories, 1)
	req.Equal(domain.RoomKey(1, 2), histories[0].RoomKey)
	req.Len(histories[0].Messages, 1)
	req.Equal([]byte("C1"), histories[0].Messages[0].Ciphertext)
	req.Equal(uint64(1), histories[0].Messages[0].Sequence)
	req.Empty(sinkA.histories())
}

func TestRelay_Live_Message_Reaches_Present_Peer_Only(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()
	sinkA, sinkB := &captureSink{}, &captureSink{}

	relay.Connect("conn-a", sinkA)
	relay.Connect("conn-b", sinkB)
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))
	req.NoError(relay.Join(ctx, "conn-b", 2, 1))

	// When user 1 sends while both are present
	req.NoError(relay.RelayCiphertext(ctx, ciphertext(1, "C2"), 2))

	// Then user 2 receives it live and user 1 gets no echo
	received := sinkB.ciphertexts()
	req.Len(received, 1)
	req.Equal(int64(1), received[0].Sender)
	req.Equal([]byte("C2"), received[0].Ciphertext)
	req.Empty(sinkA.ciphertexts())
}

func TestRelay_Room_Teardown_Erases_History(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()
	sinkA, sinkB := &captureSink{}, &captureSink{}

	// Given a complete pair with buffered history
	relay.Connect("conn-a", sinkA)
	relay.Connect("conn-b", sinkB)
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))
	req.NoError(relay.RelayCiphertext(ctx, ciphertext(1, "C1"), 2))
	req.NoError(relay.Join(ctx, "conn-b", 2, 1))

	// When both leave
	req.NoError(relay.Leave("conn-a", 1, 2))
	req.NoError(relay.Leave("conn-b", 2, 1))
	req.Empty(relay.Members(domain.RoomKey(1, 2)))

	// And the pair reconvenes
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))
	req.NoError(relay.Join(ctx, "conn-b", 2, 1))

	// Then the second epoch starts from an empty log
	histories := sinkB.histories()
	req.Len(histories, 2)
	req.Len(histories[0].Messages, 1)
	req.Empty(histories[1].Messages)
}

func TestRelay_Leave_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay()
	relay.Connect("conn-a", &captureSink{})

	// Leaving a never-joined room is a no-op
	req.NoError(relay.Leave("conn-a", 1, 2))
	req.NoError(relay.Leave("conn-a", 1, 2))
}

func TestRelay_Disconnect_Runs_Implicit_Leave(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()
	sinkA := &captureSink{}

	relay.Connect("conn-a", sinkA)
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))
	req.Equal([]int64{1}, relay.Members(domain.RoomKey(1, 2)))

	// When the connection drops without an explicit leave
	relay.Disconnect("conn-a")

	// Then no phantom member survives
	req.Empty(relay.Members(domain.RoomKey(1, 2)))
}

func TestRelay_Join_Rejects_Identity_Takeover(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()

	relay.Connect("conn-a", &captureSink{})
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))

	// The same connection cannot rejoin as someone else
	err := relay.Join(ctx, "conn-a", 3, 2)
	req.ErrorIs(err, errors.ErrAlreadyBound)
}

func TestRelay_KeyExchange_Excludes_Sender_And_Buffers_Nothing(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	relay := newTestRelay()
	sinkA, sinkB := &captureSink{}, &captureSink{}

	relay.Connect("conn-a", sinkA)
	relay.Connect("conn-b", sinkB)
	req.NoError(relay.Join(ctx, "conn-a", 1, 2))

	// Key material sent while the peer is absent disappears
	kx := domain.KeyExchange{Sender: 1, Receiver: 2, PublicKey: []byte("pk1")}
	req.NoError(relay.RelayKeyExchange(ctx, kx))

	req.NoError(relay.Join(ctx, "conn-b", 2, 1))
	req.Empty(keyExchanges(sinkB))

	// Sent again while both are present, it reaches the peer only
	req.NoError(relay.RelayKeyExchange(ctx, kx))
	received := keyExchanges(sinkB)
	req.Len(received, 1)
	req.Equal(int64(1), received[0].Sender)
	req.Equal([]byte("pk1"), received[0].PublicKey)
	req.Empty(keyExchanges(sinkA))
}

func keyExchanges(s *captureSink) []event.KeyExchangeReceived {
	var res []event.KeyExchangeReceived
	for _, e := range s.all() {
		if kx, ok := e.(event.KeyExchangeReceived); ok {
			res = append(res, kx)
		}
	}
	return res
}
