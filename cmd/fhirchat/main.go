package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fhirchat/internal/app"
	"fhirchat/internal/config"
	"fhirchat/internal/observability"
)

// Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// Separate run function enables testing and error handling
// Signal handling ensures graceful shutdown in production environments
func run() error {
	// STEP 1: Load configuration with precedence (file > env > defaults)
	configPath := os.Getenv("FHIRCHAT_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// STEP 2: Register the trace export pipeline before any spans start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx,
		cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}

	// STEP 3: Create application with configuration
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 4: Setup signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 5: Start application in background
	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	// STEP 6: Wait for shutdown signal or application error
	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		logger.Info("shutdown_signal_received", zap.String("signal", sig.String()))

		// Timeout context prevents hanging shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing_shutdown_error", zap.Error(err))
		}

		return nil
	}
}
