package transport

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"pairchat/domain"
	"pairchat/domain/event"
	errs "pairchat/errors"
	"pairchat/sink"
	"pairchat/wire"
)

// connection is the per-goroutine state of one client. user is written by the
// reader goroutine only; the writer never touches it.
type connection struct {
	id   string
	user int64
	log  *slog.Logger
	srv  *Server
	sink *sink.ConnSink
}

// handle owns the connection's full lifecycle. The deferred Disconnect is the
// single cleanup path for normal and abnormal termination alike: it runs the
// implicit leave for every room the bound user was a member of.
func (s *Server) handle(ctx context.Context, netConn net.Conn) {
	defer func() { _ = netConn.Close() }()

	connID := uuid.NewString()
	log := s.log.With("conn_id", connID)

	snk := sink.NewConnSink(log, s.bufferSize, s.deliveryTimeout)
	snk.OnDrop(s.relay.NoteFrameDropped)
	s.relay.Connect(connID, snk)
	defer s.relay.Disconnect(connID)
	defer snk.Close()

	c := &connection{id: connID, log: log, srv: s, sink: snk}

	writerCtx, cancelWriter := context.WithCancel(ctx)
	defer cancelWriter()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(writerCtx, netConn)
	}()

	c.push(ctx, event.SessionAccepted{ConnectionID: connID})

	// Unblock the decoder when the server shuts down.
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	defer stop()

	dec := wire.NewDecoder(netConn)
	for {
		var env wire.Envelope
		if err := dec.Decode(&env); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Debug("connection closed", "error", err)
			}
			cancelWriter()
			<-writerDone
			return
		}
		c.dispatch(ctx, env)
	}
}

func (c *connection) writeLoop(ctx context.Context, netConn net.Conn) {
	enc := wire.NewEncoder(netConn)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.sink.Events():
			env, err := toEnvelope(evt)
			if err != nil {
				c.log.Error("failed to encode event", "error", err)
				continue
			}
			if err := enc.Encode(env); err != nil {
				c.log.Warn("failed to push frame, closing", "error", err)
				_ = netConn.Close()
				return
			}
		}
	}
}

func (c *connection) dispatch(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.TypeAuth:
		c.onAuth(ctx, env.Payload)
	case wire.TypeJoin:
		c.onJoin(ctx, env.Payload)
	case wire.TypeLeave:
		c.onLeave(ctx, env.Payload)
	case wire.TypeSendKeyExchange:
		c.onKeyExchange(ctx, env.Payload)
	case wire.TypeSendCiphertext:
		c.onCiphertext(ctx, env.Payload)
	default:
		c.reject(ctx, errs.CodeMalformedPayload, "unknown frame type")
	}
}

func (c *connection) onAuth(ctx context.Context, raw wire.RawMessage) {
	p, err := decode[wire.AuthPayload](c.srv, raw)
	if err != nil {
		c.reject(ctx, errs.CodeMalformedPayload, "invalid auth payload")
		return
	}
	user, err := c.srv.tokens.Validate(p.Token)
	if err != nil {
		c.reject(ctx, errs.CodeUnauthorized, "invalid credential")
		return
	}
	c.user = user
	c.push(ctx, event.Authenticated{UserID: user})
}

func (c *connection) onJoin(ctx context.Context, raw wire.RawMessage) {
	p, err := decode[wire.JoinPayload](c.srv, raw)
	if err != nil {
		c.reject(ctx, errs.CodeMalformedPayload, "invalid join payload")
		return
	}
	if !c.authorized(ctx, p.SelfID) {
		return
	}
	if err := c.srv.relay.Join(ctx, c.id, p.SelfID, p.PeerID); err != nil {
		c.reject(ctx, errs.CodeOf(err), "join failed")
	}
}

func (c *connection) onLeave(ctx context.Context, raw wire.RawMessage) {
	p, err := decode[wire.LeavePayload](c.srv, raw)
	if err != nil {
		c.reject(ctx, errs.CodeMalformedPayload, "invalid leave payload")
		return
	}
	if !c.authorized(ctx, p.SelfID) {
		return
	}
	if err := c.srv.relay.Leave(c.id, p.SelfID, p.PeerID); err != nil {
		c.reject(ctx, errs.CodeOf(err), "leave failed")
	}
}

func (c *connection) onKeyExchange(ctx context.Context, raw wire.RawMessage) {
	p, err := decode[wire.KeyExchangePayload](c.srv, raw)
	if err != nil {
		c.reject(ctx, errs.CodeMalformedPayload, "invalid key-exchange payload")
		return
	}
	if !c.authorized(ctx, p.Sender) {
		return
	}
	kx := domain.KeyExchange{
		Sender:    p.Sender,
		Receiver:  p.Receiver,
		PublicKey: p.PublicKey,
	}
	if err := c.srv.relay.RelayKeyExchange(ctx, kx); err != nil {
		c.reject(ctx, errs.CodeOf(err), "key exchange failed")
	}
}

func (c *connection) onCiphertext(ctx context.Context, raw wire.RawMessage) {
	p, err := decode[wire.CiphertextPayload](c.srv, raw)
	if err != nil {
		c.reject(ctx, errs.CodeMalformedPayload, "invalid ciphertext payload")
		return
	}
	if !c.authorized(ctx, p.Sender) {
		return
	}
	msg := domain.Message{
		Sender:     p.Sender,
		Ciphertext: p.Ciphertext,
		IV:         p.IV,
		MAC:        p.MAC,
	}
	if err := c.srv.relay.RelayCiphertext(ctx, msg, p.Receiver); err != nil {
		c.reject(ctx, errs.CodeOf(err), "send failed")
	}
}

// authorized checks the connection holds a validated identity and that the
// claimed sender is that identity.
func (c *connection) authorized(ctx context.Context, claimed int64) bool {
	if c.user == 0 {
		c.reject(ctx, errs.CodeUnauthorized, "authenticate first")
		return false
	}
	if claimed != c.user {
		c.reject(ctx, errs.CodeUnauthorized, "identity mismatch")
		return false
	}
	return true
}

// reject reports a structured error to the originating connection only.
// Payload contents are never echoed or logged.
func (c *connection) reject(ctx context.Context, code, detail string) {
	c.push(ctx, event.ProblemReported{Code: code, Detail: detail})
}

func (c *connection) push(ctx context.Context, evt event.Event) {
	if err := c.sink.Consume(ctx, evt); err != nil {
		c.log.Debug("failed to queue frame", "error", err)
	}
}

// decode unmarshals and structurally validates an inbound payload.
func decode[T any](srv *Server, raw wire.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, errs.ErrMalformedPayload
	}
	if err := wire.Unmarshal(raw, &p); err != nil {
		return p, errs.ErrMalformedPayload
	}
	if err := srv.validate.Struct(&p); err != nil {
		return p, errs.ErrMalformedPayload
	}
	return p, nil
}

// toEnvelope maps a server-push event to its wire frame.
func toEnvelope(evt event.Event) (wire.Envelope, error) {
	switch e := evt.(type) {
	case event.SessionAccepted:
		return envelope(wire.TypeConnected, wire.ConnectedPayload{ConnectionID: e.ConnectionID})
	case event.Authenticated:
		return envelope(wire.TypeAuthenticated, wire.AuthenticatedPayload{UserID: e.UserID})
	case event.ProblemReported:
		return envelope(wire.TypeError, wire.ErrorPayload{Code: e.Code, Detail: e.Detail})
	case event.HistoryLoaded:
		return envelope(wire.TypeLoadHistory, wire.LoadHistoryPayload{
			Room:     e.RoomKey,
			Messages: lo.Map(e.Messages, toHistoryMessage),
		})
	case event.KeyExchangeReceived:
		return envelope(wire.TypeReceiveKeyExchange, wire.ReceiveKeyExchangePayload{
			Sender:    e.Sender,
			PublicKey: e.PublicKey,
		})
	case event.CiphertextReceived:
		return envelope(wire.TypeReceiveCiphertext, wire.ReceiveCiphertextPayload{
			Sender:     e.Sender,
			Ciphertext: e.Ciphertext,
			IV:         e.IV,
			MAC:        e.MAC,
			Sequence:   e.Sequence,
		})
	default:
		return wire.Envelope{}, errs.ErrMalformedPayload
	}
}

func toHistoryMessage(item domain.Message, _ int) wire.HistoryMessage {
	return wire.HistoryMessage{
		Sender:     item.Sender,
		Ciphertext: item.Ciphertext,
		IV:         item.IV,
		MAC:        item.MAC,
		Sequence:   item.Sequence,
	}
}

func envelope(frameType string, payload any) (wire.Envelope, error) {
	data, err := wire.Marshal(payload)
	if err != nil {
		return wire.Envelope{}, err
	}
	return wire.Envelope{Type: frameType, Payload: data}, nil
}
