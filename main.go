package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrsandeep/litpush/internal/api"
	"github.com/vrsandeep/litpush/internal/config"
	"github.com/vrsandeep/litpush/internal/core"
	"github.com/vrsandeep/litpush/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	// Initialize the core application components
	app, err := core.New(cfg, logger)
	if err != nil {
		logger.Error("fatal error during application setup", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	config.Watch(logger, app.ApplyConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the workers and arm every active subscription
	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logger.Info("starting web server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			stop()
		}
	}()

	// Wait for an interrupt signal.
	<-ctx.Done()
	logger.Info("shutting down server")

	// Create a context with a timeout to allow existing connections to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server exiting")
}
