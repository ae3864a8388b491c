// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpAdapter "github.com/leseb/ogc-gw/pkg/adapters/http"
	"github.com/leseb/ogc-gw/pkg/core/config"
	"github.com/leseb/ogc-gw/pkg/core/services"
	"github.com/leseb/ogc-gw/pkg/observability/logging"
	"github.com/leseb/ogc-gw/pkg/provider"
	"github.com/leseb/ogc-gw/pkg/storage"
	"github.com/leseb/ogc-gw/pkg/storage/memory"
	"github.com/leseb/ogc-gw/pkg/storage/postgres"
	"github.com/leseb/ogc-gw/pkg/storage/sqlite"
)

var (
	// Version is set via ldflags during build
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Print version
	if *version {
		fmt.Printf("OGC Gateway Server\nVersion: %s\nBuild Time: %s\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.Default()
	}

	// Initialize logger
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info("Starting OGC Gateway Server",
		"version", Version,
		"build_time", BuildTime)
	if cfgErr != nil {
		// If config file doesn't exist, use defaults
		logger.Warn("Failed to load config, using defaults", "error", cfgErr)
	}

	// Override port if specified
	if *port != 0 {
		cfg.Server.Port = *port
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), time.Minute)
	defer cancelInit()

	// Initialize record store
	records, err := openRecords(initCtx, cfg.Records)
	if err != nil {
		logger.Error("Failed to initialize record store", "type", cfg.Records.Type, "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized record store", "type", cfg.Records.Type)

	// Initialize metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := provider.NewMetrics(promReg)

	// Initialize registries
	opts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithMetrics(metrics),
		provider.WithBuildTimeout(cfg.Registry.BuildTimeout),
		provider.WithCleanupTimeout(cfg.Registry.CleanupTimeout),
		provider.WithLoadConcurrency(cfg.Registry.LoadConcurrency),
	}
	layers := services.NewLayerRegistry(opts...)
	styles := services.NewStyleRegistry(opts...)
	logger.Info("Initialized registries",
		"layer_factories", len(layers.Factories()),
		"style_factories", len(styles.Factories()))

	// Initialize provider service and restore registrations
	providers := services.NewProviders(records, logger, layers.Admin(), styles.Admin())
	if err := providers.Restore(initCtx, cfg.Declarations()); err != nil {
		logger.Warn("Some providers could not be restored", "error", err)
	}
	logger.Info("Restored providers", "layers", layers.Len(), "styles", styles.Len())

	// Initialize HTTP adapter
	handler := httpAdapter.New(providers, logger, promReg).Secure(httpAdapter.SecurityConfig{
		AuthSecret:  cfg.Server.AuthSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	logger.Info("Initialized HTTP adapter",
		"auth", cfg.Server.AuthSecret != "",
		"cors_origins", len(cfg.Server.CORSOrigins))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("Provider shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}

func openRecords(ctx context.Context, cfg config.RecordsConfig) (storage.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.New(ctx, cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown records type %q", cfg.Type)
	}
}
