package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/handlers"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/middleware"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.NewWithOptions(os.Stdout, cfg.Server.Env, cfg.Server.LogLevel)
	log.Info("Starting DataBridge API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"store":       cfg.Store.Driver,
	})

	// Open the store and wire the pipeline and services over it
	ctx := context.Background()
	a, err := app.New(ctx, cfg, log, app.Options{RuntimeMetrics: true})
	if err != nil {
		log.Fatal("Failed to initialize application", err, map[string]interface{}{
			"store": cfg.Store.Driver,
		})
	}

	log.Info("Store ready", map[string]interface{}{
		"driver":   a.Store.Driver(),
		"workers":  a.Pipeline.Options().Workers,
		"matching": a.Pipeline.Options().AddressMatching,
	})

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, a.Metrics))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	handlers.Routes{
		Health:    handlers.NewHealthHandler(a.Store, cfg.Server.Env, a.Store.Driver()),
		Imports:   handlers.NewImportHandler(a.Imports),
		Addresses: handlers.NewAddressHandler(a.Addresses),
		Parcels:   handlers.NewParcelHandler(a.Parcels),
		Metrics:   a.Metrics.Handler(),
	}.Register(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown: stop accepting requests, then abort running imports
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error("Background imports did not stop cleanly", err, nil)
	}

	log.Info("Server exited", nil)
}
