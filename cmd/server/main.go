package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"inbox2excel/internal/config"
	"inbox2excel/internal/database"
	"inbox2excel/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	// Initialize database
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger.Info("Database initialized", "path", cfg.DBPath)

	handlers, err := server.NewHandlers(db, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize handlers: %v", err)
	}

	if cfg.DisableAuth {
		logger.Warn("API key authentication is disabled")
	}
	if cfg.DisableQuotas {
		logger.Warn("Plan quotas are disabled")
	}

	router := server.NewRouter(handlers, server.RouterOptions{
		APIKey:       cfg.APIKey,
		DisableAuth:  cfg.DisableAuth,
		AllowOrigins: cfg.AllowOrigins,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,

		// Timeouts. Writes cover a full mailbox search plus the export.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle server startup and graceful shutdown
	if err := server.HandleSignals(srv, cfg.ShutdownTimeout, logger); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
