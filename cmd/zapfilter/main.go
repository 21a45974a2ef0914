package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "zapfilter/docs"
	"zapfilter/platform/config"
	"zapfilter/platform/container"
	"zapfilter/platform/logger"
)

const (
	appName    = "zapfilter"
	appVersion = "1.0.0"
)

// @title zapfilter API
// @version 1.0
// @description WhatsApp message filtering and routing gateway
// @BasePath /
// @securityDefinitions.basic BasicAuth
func main() {
	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromAppConfig(cfg)
	log.InfoWithFields("Starting zapfilter application", map[string]interface{}{
		"version":     appVersion,
		"environment": cfg.Environment,
		"port":        cfg.Port,
		"client":      cfg.WhatsAppEnabled,
	})

	log.Info("Initializing dependency injection container...")
	diContainer, err := container.New(&container.Config{
		AppConfig: cfg,
		Logger:    log,
		Version:   appVersion,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("Failed to initialize DI container: %v", err))
	}

	if err := diContainer.Start(ctx); err != nil {
		log.Fatal(fmt.Sprintf("Failed to start container components: %v", err))
	}

	// WriteTimeout leaves room for a full synchronous delivery cycle
	// with retries behind a single ingress request.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      diContainer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)

	go func() {
		log.InfoWithFields("Starting HTTP server", map[string]interface{}{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case sig := <-sigChan:
		log.InfoWithFields("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errChan:
		log.ErrorWithFields("Application error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Initiating graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop intake first so the final store flush sees the last event.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithFields("Error shutting down HTTP server", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := diContainer.Stop(shutdownCtx); err != nil {
		log.ErrorWithFields("Error stopping container components", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Application shutdown completed successfully")
}

// printBanner shows the application banner.
func printBanner() {
	banner := `
 ███████╗ █████╗ ██████╗ ███████╗██╗██╗     ████████╗███████╗██████╗
 ╚══███╔╝██╔══██╗██╔══██╗██╔════╝██║██║     ╚══██╔══╝██╔════╝██╔══██╗
   ███╔╝ ███████║██████╔╝█████╗  ██║██║        ██║   █████╗  ██████╔╝
  ███╔╝  ██╔══██║██╔═══╝ ██╔══╝  ██║██║        ██║   ██╔══╝  ██╔══██╗
 ███████╗██║  ██║██║     ██║     ██║███████╗   ██║   ███████╗██║  ██║
 ╚══════╝╚═╝  ╚═╝╚═╝     ╚═╝     ╚═╝╚══════╝   ╚═╝   ╚══════╝╚═╝  ╚═╝

 WhatsApp Message Filtering Gateway
 Version: %s`

	fmt.Printf(banner+"\n\n", appVersion)
}
