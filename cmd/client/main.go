package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"pairchat/auth"
	"pairchat/internal"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:4000"`
	UserID        int64  `env:"CHAT_USER_ID,required=true"`
	PeerID        int64  `env:"CHAT_PEER_ID,required=true"`
	Token         string `env:"CHAT_TOKEN"`
	AuthSecret    string `env:"AUTH_SECRET"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the connection lifecycle: dial, authenticate, join, handshake,
// then chat until EOF or a termination signal.
func run() (int, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := internal.GetLoggerFromString(config.LogLevel)

	// A token can be supplied directly or minted locally from the shared
	// secret, which is convenient for development setups.
	token := config.Token
	if token == "" {
		if config.AuthSecret == "" {
			return exitConfig, fmt.Errorf("either CHAT_TOKEN or AUTH_SECRET is required")
		}
		var err error
		token, err = auth.GenerateToken([]byte(config.AuthSecret), config.UserID, 24*time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("token generation failed: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	chat, err := newChat(log, conn, config.UserID, config.PeerID)
	if err != nil {
		return exitRuntime, err
	}

	if err := chat.authenticate(token); err != nil {
		return exitRuntime, err
	}

	// Reception loop runs until the connection drops or ctx is canceled.
	recvDone := make(chan error, 1)
	go func() { recvDone <- chat.receiveLoop(ctx) }()

	// Input loop: everything typed is sealed and sent; /quit leaves.
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "/quit" {
				chat.leave()
				return
			}
			chat.send(line)
		}
	}()

	select {
	case <-ctx.Done():
		chat.leave()
		return exitOK, nil
	case err := <-recvDone:
		if err != nil {
			return exitRuntime, err
		}
		return exitOK, nil
	case <-inputDone:
		return exitOK, nil
	}
}
