package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"pairchat/e2ee"
	"pairchat/wire"
)

// chat holds the client-side session state. The mutex covers the encoder
// (written from the input and reception goroutines) and the E2EE handshake
// state, mirroring the event-driven flags of the original browser client.
type chat struct {
	log  *slog.Logger
	self int64
	peer int64

	mu      sync.Mutex
	enc     *cbor.Encoder
	keys    e2ee.KeyPair
	session *e2ee.Session
	keySent bool
	pending []wire.HistoryMessage

	dec *cbor.Decoder
}

func newChat(log *slog.Logger, conn net.Conn, self, peer int64) (*chat, error) {
	keys, err := e2ee.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &chat{
		log:  log,
		self: self,
		peer: peer,
		enc:  wire.NewEncoder(conn),
		dec:  wire.NewDecoder(conn),
		keys: keys,
	}, nil
}

func (c *chat) authenticate(token string) error {
	return c.write(wire.TypeAuth, wire.AuthPayload{Token: token})
}

func (c *chat) receiveLoop(ctx context.Context) error {
	for {
		var env wire.Envelope
		if err := c.dec.Decode(&env); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		c.handle(env)
	}
}

func (c *chat) handle(env wire.Envelope) {
	switch env.Type {
	case wire.TypeConnected:
		// Greeting only; the handshake starts once authenticated.
	case wire.TypeAuthenticated:
		c.onAuthenticated()
	case wire.TypeLoadHistory:
		var p wire.LoadHistoryPayload
		if err := wire.Unmarshal(env.Payload, &p); err == nil {
			c.onHistory(p)
		}
	case wire.TypeReceiveKeyExchange:
		var p wire.ReceiveKeyExchangePayload
		if err := wire.Unmarshal(env.Payload, &p); err == nil {
			c.onPeerKey(p)
		}
	case wire.TypeReceiveCiphertext:
		var p wire.ReceiveCiphertextPayload
		if err := wire.Unmarshal(env.Payload, &p); err == nil {
			c.onCiphertext(p)
		}
	case wire.TypeError:
		var p wire.ErrorPayload
		if err := wire.Unmarshal(env.Payload, &p); err == nil {
			color.Red.Printf("server error [%s] %s\n", p.Code, p.Detail)
		}
	}
}

// onAuthenticated joins the pair's room and offers our public key.
func (c *chat) onAuthenticated() {
	_ = c.write(wire.TypeJoin, wire.JoinPayload{SelfID: c.self, PeerID: c.peer})

	c.mu.Lock()
	pub := c.keys.Public
	c.keySent = true
	c.mu.Unlock()

	_ = c.write(wire.TypeSendKeyExchange, wire.KeyExchangePayload{
		Sender:    c.self,
		Receiver:  c.peer,
		PublicKey: pub[:],
	})
	color.Yellow.Println("waiting for peer key exchange...")
}

// onPeerKey derives the session keys once; later keys are ignored, matching
// the original client's keysDerived guard.
func (c *chat) onPeerKey(p wire.ReceiveKeyExchangePayload) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return
	}
	session, err := e2ee.Derive(c.keys.Private, p.PublicKey)
	if err != nil {
		c.mu.Unlock()
		c.log.Error("key derivation failed", "error", err)
		return
	}
	c.session = session
	pending := c.pending
	c.pending = nil
	resend := !c.keySent
	c.keySent = true
	c.mu.Unlock()

	if resend {
		pub := c.keys.Public
		_ = c.write(wire.TypeSendKeyExchange, wire.KeyExchangePayload{
			Sender:    c.self,
			Receiver:  c.peer,
			PublicKey: pub[:],
		})
	}

	color.Green.Println("end-to-end encryption established")
	if pending != nil {
		c.renderHistory(pending)
	}
}

// onHistory renders the replayed log, or defers it until the handshake
// finishes when the peer's key has not arrived yet.
func (c *chat) onHistory(p wire.LoadHistoryPayload) {
	c.mu.Lock()
	if c.session == nil {
		c.pending = append(c.pending, p.Messages...)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.renderHistory(p.Messages)
}

func (c *chat) renderHistory(messages []wire.HistoryMessage) {
	if len(messages) == 0 {
		color.Gray.Println("no buffered messages")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "From", "Message"})
	for _, msg := range messages {
		text := c.decrypt(msg.Ciphertext, msg.IV, msg.MAC)
		table.Append([]string{
			strconv.FormatUint(msg.Sequence, 10),
			strconv.FormatInt(msg.Sender, 10),
			text,
		})
	}
	table.Render()
}

func (c *chat) onCiphertext(p wire.ReceiveCiphertextPayload) {
	text := c.decrypt(p.Ciphertext, p.IV, p.MAC)
	color.Cyan.Printf("[%d] ", p.Sender)
	fmt.Println(text)
}

func (c *chat) decrypt(ciphertext, iv, mac []byte) string {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return "<handshake incomplete>"
	}
	plaintext, err := session.Open(ciphertext, iv, mac)
	if err != nil {
		return "<undecipherable message>"
	}
	return string(plaintext)
}

func (c *chat) send(text string) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		color.Yellow.Println("handshake not complete yet, message not sent")
		return
	}

	ciphertext, iv, mac, err := session.Seal([]byte(text))
	if err != nil {
		c.log.Error("encryption failed", "error", err)
		return
	}
	err = c.write(wire.TypeSendCiphertext, wire.CiphertextPayload{
		Sender:     c.self,
		Receiver:   c.peer,
		Ciphertext: ciphertext,
		IV:         iv,
		MAC:        mac,
	})
	if err != nil {
		c.log.Error("send failed", "error", err)
		return
	}
	color.Cyan.Printf("[me] ")
	fmt.Println(text)
}

func (c *chat) leave() {
	_ = c.write(wire.TypeLeave, wire.LeavePayload{SelfID: c.self, PeerID: c.peer})
}

func (c *chat) write(frameType string, payload any) error {
	data, err := wire.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(wire.Envelope{Type: frameType, Payload: data})
}
