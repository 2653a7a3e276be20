package services

import (
	"context"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/runtime"
)

// IRelayService is the surface the transport layer programs against.
type IRelayService interface {
	Connect(connID string, sink contract.EventSink)
	Disconnect(connID string)
	Join(ctx context.Context, connID string, self, peer int64) error
	Leave(connID string, self, peer int64) error
	RelayKeyExchange(ctx context.Context, kx domain.KeyExchange) error
	RelayCiphertext(ctx context.Context, msg domain.Message, receiver int64) error
	NoteFrameDropped()
}

type RelayService struct {
	relay *runtime.Relay
}

func NewRelayService(relay *runtime.Relay) *RelayService {
	return &RelayService{relay: relay}
}

func (s *RelayService) Connect(connID string, sink contract.EventSink) {
	s.relay.Connect(connID, sink)
}

func (s *RelayService) Disconnect(connID string) {
	s.relay.Disconnect(connID)
}

func (s *RelayService) Join(ctx context.Context, connID string, self, peer int64) error {
	return s.relay.Join(ctx, connID, self, peer)
}

func (s *RelayService) Leave(connID string, self, peer int64) error {
	return s.relay.Leave(connID, self, peer)
}

func (s *RelayService) RelayKeyExchange(ctx context.Context, kx domain.KeyExchange) error {
	return s.relay.RelayKeyExchange(ctx, kx)
}

func (s *RelayService) RelayCiphertext(ctx context.Context, msg domain.Message, receiver int64) error {
	return s.relay.RelayCiphertext(ctx, msg, receiver)
}

func (s *RelayService) NoteFrameDropped() {
	s.relay.NoteFrameDropped()
}
