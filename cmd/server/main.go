package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"pairchat/auth"
	"pairchat/domain/event"
	"pairchat/infrastructure/storage"
	"pairchat/internal"
	"pairchat/observability"
	"pairchat/runtime"
	"pairchat/runtime/workers"
	"pairchat/services"
	"pairchat/transport"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes
// error reporting, so every defer (history store close included) executes
// before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger (.env is optional, real environment wins)
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := internal.GetLoggerFromString(config.LogLevel)

	// 2. Ephemeral history store.
	// Badger runs in in-memory mode: history lives exactly as long as the
	// process and room teardown, never on disk.
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("history store opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing history store...")
		_ = db.Close()
	}()

	// 3. Relay core
	historyRepository := storage.NewHistoryRepository(db, logger)
	sessions := runtime.NewSessionRegistry()
	rooms := runtime.NewRoomRegistry(historyRepository)

	telemetryChan := make(chan event.Telemetry, config.TelemetryBufferSize)
	relay := runtime.NewRelay(logger, sessions, rooms, telemetryChan)
	relayService := services.NewRelayService(relay)

	// 4. Observability
	promRegistry := prometheus.NewRegistry()
	stats := observability.NewRelayStats(promRegistry)
	monitor := observability.NewMonitor(logger, config.MetricInterval)

	// 5. Transport
	tokens := auth.NewValidator([]byte(config.AuthSecret))
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	server := transport.NewServer(logger, listener, relayService, tokens,
		config.ConnectionBufferSize, config.DeliveryTimeout)

	// 6. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(server)
	sup.Add(workers.NewTelemetryWorker(logger, telemetryChan, stats))
	sup.Add(monitor)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debugServer := internal.NewDebugServer(config.DebugPort, promRegistry,
		func() any { return monitor.Latest() })
	go func() {
		logger.Info("Debug endpoints available", "port", config.DebugPort)
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("debug server error", "error", err)
		}
	}()

	supDone := make(chan struct{})
	go func() {
		logger.Info("Starting relay", "address", address, "at", time.Now().UTC())
		sup.Run(ctx)
		close(supDone)
	}()

	// 8. Wait for Stop
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// 9. Final Cleanup (Graceful Shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = debugServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}
