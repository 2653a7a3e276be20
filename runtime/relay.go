// Package runtime binds sessions, rooms and history into the relay core.
// It owns ordering and presence semantics; it never inspects cryptographic
// content and never blocks a sender on a peer's transport.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/domain/event"
	"pairchat/errors"
	"pairchat/repositories"
)

// Relay coordinates the session registry and the room registry and emits the
// server-push events resulting from each client operation. Outbound delivery
// goes through per-connection sinks and is fire-and-forget.
type Relay struct {
	log       *slog.Logger
	sessions  *SessionRegistry
	rooms     *RoomRegistry
	telemetry chan<- event.Telemetry
}

func NewRelay(log *slog.Logger, sessions *SessionRegistry, rooms *RoomRegistry,
	telemetry chan<- event.Telemetry) *Relay {
	return &Relay{
		log:       log,
		sessions:  sessions,
		rooms:     rooms,
		telemetry: telemetry,
	}
}

// Connect registers a new transport connection and its outbound sink.
func (r *Relay) Connect(connID string, sink contract.EventSink) {
	r.sessions.Open(connID, sink)
	r.emit(event.SessionOpened, "")
}

// Disconnect is the implicit leave for every pair the connection's bound user
// had joined. It must be reachable from every disconnect path, abnormal
// transport termination included, to avoid leaking phantom members.
func (r *Relay) Disconnect(connID string) {
	_, pairs, ok := r.sessions.Close(connID)
	if !ok {
		return
	}
	for _, p := range pairs {
		if deleted, err := r.rooms.Leave(p.Self, p.Peer); err == nil && deleted {
			r.emit(event.RoomDeleted, domain.RoomKey(p.Self, p.Peer))
		}
	}
	r.emit(event.SessionClosed, "")
}

// Join binds the session to the caller's identity, adds it to the room for
// {self, peer} and, when both correspondents are now simultaneously present,
// releases the buffered history to the joining connection only.
func (r *Relay) Join(ctx context.Context, connID string, self, peer int64) error {
	if err := r.sessions.Bind(connID, self); err != nil {
		return err
	}

	res, err := r.rooms.Join(self, peer, connID)
	if err != nil {
		return err
	}
	r.sessions.Track(connID, self, peer)

	if res.RoomCreated {
		r.emit(event.RoomCreated, res.RoomKey)
	}
	r.log.Debug("user joined room", "room", res.RoomKey, "user", self)

	if !res.Deliver {
		return nil
	}
	sink, ok := r.sessions.Sink(connID)
	if !ok {
		return nil
	}
	history := event.HistoryLoaded{
		RoomKey:  res.RoomKey,
		Messages: lo.Map(res.Snapshot, fromStoredMessage),
	}
	if err := sink.Consume(ctx, history); err != nil {
		r.log.Warn("history delivery failed", "room", res.RoomKey, "error", err)
		return nil
	}
	r.emit(event.HistoryDelivered, res.RoomKey)
	return nil
}

// Leave removes the user from the room; the room and its history are torn
// down when membership empties. Leaving a never-joined room is a no-op.
func (r *Relay) Leave(connID string, self, peer int64) error {
	deleted, err := r.rooms.Leave(self, peer)
	if err != nil {
		// Idempotent leave: an unknown room is not an error.
		if errors.CodeOf(err) == errors.CodeNotFound {
			return nil
		}
		return err
	}
	r.sessions.Untrack(connID, self, peer)
	if deleted {
		r.emit(event.RoomDeleted, domain.RoomKey(self, peer))
		r.log.Debug("room deleted", "room", domain.RoomKey(self, peer))
	}
	return nil
}

// RelayKeyExchange forwards key material to every other present member of the
// pair's room, excluding the sender. Nothing is buffered.
func (r *Relay) RelayKeyExchange(ctx context.Context, kx domain.KeyExchange) error {
	key, targets := r.rooms.RelayTargets(kx.Sender, kx.Receiver)
	evt := event.KeyExchangeReceived{
		RoomKey:   key,
		Sender:    kx.Sender,
		PublicKey: kx.PublicKey,
	}
	r.deliver(ctx, targets, evt)
	r.emit(event.KeyExchangeRelayed, key)
	return nil
}

// RelayCiphertext appends the message to the room's history, creating the
// room on demand, then forwards it to the other present members.
func (r *Relay) RelayCiphertext(ctx context.Context, msg domain.Message, receiver int64) error {
	res, err := r.rooms.Append(msg.Sender, toStoredMessage(msg), receiver)
	if err != nil {
		return err
	}
	if res.RoomCreated {
		r.emit(event.RoomCreated, res.RoomKey)
	}

	evt := event.CiphertextReceived{
		RoomKey:    res.RoomKey,
		Sender:     res.Message.Sender,
		Ciphertext: res.Message.Ciphertext,
		IV:         res.Message.IV,
		MAC:        res.Message.MAC,
		Sequence:   res.Message.Sequence,
	}
	r.deliver(ctx, res.Targets, evt)
	r.emit(event.CiphertextRelayed, res.RoomKey)
	return nil
}

// NoteFrameDropped feeds sink drop counts into telemetry.
func (r *Relay) NoteFrameDropped() {
	r.emit(event.FrameDropped, "")
}

// Members exposes current room membership, mainly for tests and stats.
func (r *Relay) Members(roomKey string) []int64 {
	return r.rooms.Members(roomKey)
}

// deliver pushes an event to each target connection's sink. Failures are
// logged and swallowed: messages already appended to history stay durable
// for the room's lifetime regardless of delivery success.
func (r *Relay) deliver(ctx context.Context, targets []string, evt event.Event) {
	for _, connID := range targets {
		sink, ok := r.sessions.Sink(connID)
		if !ok {
			continue
		}
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Warn("relay delivery failed", "room", evt.Room(), "error", err)
		}
	}
}

func (r *Relay) emit(t event.TelemetryType, roomKey string) {
	if r.telemetry == nil {
		return
	}
	select {
	case r.telemetry <- event.Telemetry{Type: t, RoomKey: roomKey, At: time.Now().UTC()}:
	default:
		r.log.Debug("telemetry event lost")
	}
}

func toStoredMessage(msg domain.Message) repositories.StoredMessage {
	return repositories.StoredMessage{
		Sender:     msg.Sender,
		Ciphertext: msg.Ciphertext,
		IV:         msg.IV,
		MAC:        msg.MAC,
	}
}

func fromStoredMessage(item repositories.StoredMessage, _ int) domain.Message {
	return domain.Message{
		Sender:     item.Sender,
		Ciphertext: item.Ciphertext,
		IV:         item.IV,
		MAC:        item.MAC,
		Sequence:   item.Sequence,
	}
}
