// Command sandbox runs a local stand-in for the workflow API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promethium-examples/runner/internal/api"
	"promethium-examples/runner/internal/config"
	"promethium-examples/runner/internal/logging"
	"promethium-examples/runner/internal/tls"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger := logging.NewLogger(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	if cfg.Sandbox.APIKey == "" {
		logger.Warn("sandbox.api_key is empty, workflow routes are unauthenticated")
	}

	sandbox := api.NewServer(cfg.Sandbox.Steps, logger)
	e := api.NewRouter(sandbox, cfg.Sandbox.APIKey, logger)

	server := &http.Server{
		Addr:         cfg.Sandbox.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Sandbox starting", "address", cfg.Sandbox.Addr, "tls", cfg.Sandbox.TLS, "steps", cfg.Sandbox.Steps)
		if !cfg.Sandbox.TLS {
			serverErrors <- server.ListenAndServe()
			return
		}

		created, err := tls.EnsureCertificate(cfg.Sandbox.CertFile, cfg.Sandbox.KeyFile, cfg.Sandbox.Hostnames)
		if err != nil {
			serverErrors <- err
			return
		}
		if created {
			logger.Info("generated self-signed certificate", "cert_file", cfg.Sandbox.CertFile, "hosts", cfg.Sandbox.Hostnames)
		}
		serverErrors <- server.ListenAndServeTLS(cfg.Sandbox.CertFile, cfg.Sandbox.KeyFile)
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			logger.Sync()
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}
