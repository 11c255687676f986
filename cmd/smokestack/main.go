// Smokestack coordination server: tracks planned operations, arbitrates
// conflicts at admission time, and streams changes to watchers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/smokestack-project/smokestack/pkg/admission"
	"github.com/smokestack-project/smokestack/pkg/api"
	"github.com/smokestack-project/smokestack/pkg/config"
	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/events"
	"github.com/smokestack-project/smokestack/pkg/services"
	"github.com/smokestack-project/smokestack/pkg/store"
	"github.com/smokestack-project/smokestack/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("SMOKESTACK_CONFIG", "smokestack.yaml"),
		"Path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting smokestack",
		"version", version.GitCommit,
		"config", *configPath)

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. State: snapshot and history journal
	snap, err := store.LoadSnapshot(cfg.State.SnapshotPath)
	if err != nil {
		slog.Error("Failed to load snapshot", "path", cfg.State.SnapshotPath, "error", err)
		os.Exit(1)
	}
	st := store.FromSnapshot(snap)
	slog.Info("State loaded",
		"path", cfg.State.SnapshotPath,
		"operations", len(st.ListOperations(store.OperationFilter{})))

	history, err := store.OpenHistory(cfg.State.HistoryPath)
	if err != nil {
		slog.Error("Failed to open history log", "path", cfg.State.HistoryPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := history.Close(); err != nil {
			slog.Error("Error closing history log", "error", err)
		}
	}()

	// 3. Event fan-out: bus for watch streams, dispatcher for system sinks
	bus := events.NewBus(cfg.Events.QueueSize)
	connManager := events.NewConnectionManager(bus, cfg.Events.WriteTimeout)
	dispatcher := events.NewDispatcher(&events.WebhookDeliverer{}, cfg.Sinks)
	defer dispatcher.Close()

	// 4. Engine and services
	eng := engine.New(engine.Options{
		Store:        st,
		History:      history,
		Controller:   admission.New(st, cfg.Server.AdminGroup),
		Bus:          bus,
		Sinks:        dispatcher,
		SnapshotPath: cfg.State.SnapshotPath,
	})

	httpServer := api.NewServer(
		cfg,
		eng,
		services.NewOperationService(eng, st),
		services.NewRegistryService(eng, st),
		services.NewSubscriptionService(eng, st),
		services.NewHistoryService(history),
		connManager,
		dispatcher,
	)

	// 5. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := httpServer.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: stop accepting requests, then drain sink workers
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
