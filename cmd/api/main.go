// Psikit Payments Microservice
//
// This is the main entry point for the payment and notification service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/psikit/psikit-payments/config"
	"github.com/psikit/psikit-payments/internal/api"
	"github.com/psikit/psikit-payments/internal/event"
	"github.com/psikit/psikit-payments/internal/logging"
	"github.com/psikit/psikit-payments/internal/notify"
	"github.com/psikit/psikit-payments/internal/notify/channel"
	"github.com/psikit/psikit-payments/internal/payment"
	"github.com/psikit/psikit-payments/internal/platform/mercadopago"
)

func main() {
	// Local runs keep their env in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.GetLogger(cfg.Logs.LokiURL)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	gateway := mercadopago.NewClient(cfg.Provider.BaseURL, cfg.Provider.AccessToken)
	bus := event.NewBus()

	// Delivery Channel Adapter
	grant := cfg.Notify.GrantDelivery
	gate := channel.GateFunc(func(context.Context) (bool, error) {
		return grant, nil
	})
	push := channel.NewPushChannel(cfg.Notify.PushEndpoint, time.Duration(cfg.Notify.PushTimeoutMs)*time.Millisecond)
	local := channel.NewLocalChannel()
	adapter := channel.NewAdapter(gate, push, local,
		time.Duration(cfg.Notify.BufferWindowMs)*time.Millisecond, logger)

	// Service Layer
	orchestrator := payment.NewOrchestrator(gateway, bus, logger)
	dispatcher := notify.NewDispatcher(adapter, logger)

	watcher := notify.NewPendingWatcher(dispatcher,
		time.Duration(cfg.Notify.PendingGraceSec)*time.Second,
		time.Duration(cfg.Notify.PendingSweepSec)*time.Second,
		logger)
	watcher.Subscribe(bus)
	watcher.Start(ctx)

	if _, err := adapter.RequestPermission(ctx); err != nil {
		logger.Warn("initial permission negotiation failed", "error", err)
	}

	// API Layer
	handler := api.NewHandler(orchestrator, dispatcher, adapter, logger)
	router := api.SetupRouter(handler, cfg.Server.GinMode, cfg.Security.ServiceAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := router.Run(serverAddr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	adapter.Close()
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config) error {
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("PROVIDER_BASE_URL is required")
	}
	if cfg.Provider.AccessToken == "" {
		log.Println("Warning: MP_ACCESS_TOKEN not set")
	}
	if cfg.Security.ServiceAPIKey == "" {
		log.Println("Warning: PAYMENTS_SERVICE_API_KEY not set, service auth disabled")
	}
	return nil
}
