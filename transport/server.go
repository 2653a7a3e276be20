// Package transport accepts client connections and drives the relay event
// protocol over framed CBOR. Each connection is owned by its own goroutine;
// handlers never block other connections.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"pairchat/contract"
	"pairchat/services"
)

// Server owns an already bound listener and accepts connections until its
// context is canceled. It implements contract.Worker so the supervisor can
// restart it after a panic without rebinding the port.
type Server struct {
	log             *slog.Logger
	lis             net.Listener
	relay           services.IRelayService
	tokens          contract.TokenValidator
	bufferSize      int
	deliveryTimeout time.Duration
	validate        *validator.Validate

	connWG sync.WaitGroup
}

func NewServer(log *slog.Logger, lis net.Listener, relay services.IRelayService,
	tokens contract.TokenValidator, bufferSize int, deliveryTimeout time.Duration) *Server {
	return &Server{
		log:             log,
		lis:             lis,
		relay:           relay,
		tokens:          tokens,
		bufferSize:      bufferSize,
		deliveryTimeout: deliveryTimeout,
		validate:        validator.New(),
	}
}

// Addr returns the listener address, useful when bound to port 0.
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

func (s *Server) Run(ctx context.Context) error {
	s.log.Info("Listening", "address", s.lis.Addr().String())

	// Closing the listener is the only way to unblock Accept.
	stop := context.AfterFunc(ctx, func() { _ = s.lis.Close() })
	defer stop()

	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("Stopped listening", "address", s.lis.Addr().String())
				s.connWG.Wait()
				return nil
			}
			s.log.Error("Accept failure", "error", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetKeepAlive(true)
		}

		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.handle(ctx, conn)
		}()
	}
}
