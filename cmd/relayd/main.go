package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"smart-building-backend/config"
	"smart-building-backend/internal/api"
	"smart-building-backend/internal/coordinator"
	"smart-building-backend/internal/db"
	"smart-building-backend/internal/notification"
	"smart-building-backend/internal/overtime"
	"smart-building-backend/internal/relaystate"
	"smart-building-backend/internal/schedule"
	"smart-building-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "relayd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Shared relay-state store
	var relays relaystate.Store
	switch cfg.RelayStore.Backend {
	case "firebase":
		relays, err = relaystate.NewFirebase(ctx, cfg.RelayStore)
		if err != nil {
			logger.Fatalf("failed to initialize firebase relay store: %v", err)
		}
	default:
		relays = relaystate.NewMemory()
	}
	defer relays.Close()
	logger.Printf("relay store initialized (backend: %s)", cfg.RelayStore.Backend)

	coord := coordinator.New(relays, cfg.Coordinator.ManualTimeout, nil)

	// Web push alerts are optional; without VAPID keys the evaluator
	// runs with alerts disabled.
	var alerts overtime.Alerter
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		alerts = pool
		logger.Printf("notification worker pool started (size: %d)", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; push alerts disabled")
	}

	overtimeEval, err := overtime.NewEvaluator(appStore, relays, coord, alerts, cfg.Overtime)
	if err != nil {
		logger.Fatalf("failed to initialize overtime evaluator: %v", err)
	}
	scheduleEval, err := schedule.NewEvaluator(appStore, relays, coord, overtimeEval, cfg.Schedule)
	if err != nil {
		logger.Fatalf("failed to initialize schedule evaluator: %v", err)
	}

	go scheduleEval.Run(ctx)
	go overtimeEval.Run(ctx)

	// Initialize router
	handler := api.NewHandler(appStore, relays, coord, scheduleEval, overtimeEval, webpushOptions)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
