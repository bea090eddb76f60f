// cmd/marketplace/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/marketplace/internal/addons"
	"github.com/FairForge/marketplace/internal/api"
	"github.com/FairForge/marketplace/internal/config"
	"github.com/FairForge/marketplace/internal/database"
	"github.com/FairForge/marketplace/internal/logging"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Must(&logging.LoggerConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer func() { _ = logger.Sync() }()

	var store addons.Store
	switch cfg.Store.Mode {
	case "memory":
		seed := sampleAddons()
		store = addons.NewMemoryStore(seed...)
		logger.Info("using in-memory add-on store", zap.Int("seeded", len(seed)))

	case "postgres":
		pg, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pg.Ping(ctx); err != nil {
			cancel()
			logger.Fatal("database unreachable", zap.Error(err))
		}
		if err := pg.CreateTables(ctx); err != nil {
			cancel()
			logger.Fatal("failed to create tables", zap.Error(err))
		}
		cancel()
		store = pg
		logger.Info("using postgres add-on store", zap.String("host", cfg.Database.Host))

	default:
		logger.Fatal("invalid STORE_MODE", zap.String("mode", cfg.Store.Mode))
	}

	server := api.NewServer(cfg, logger, store)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
