package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrtrail/qrtrail/internal/database"
	"github.com/qrtrail/qrtrail/internal/logging"
	"github.com/qrtrail/qrtrail/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("QRTRAIL_LOG_LEVEL"))

	port := os.Getenv("QRTRAIL_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("QRTRAIL_DB_PATH")
	if dbPath == "" {
		dbPath = "qrtrail.db"
	}

	// The signing secret is injected here and nowhere else. It is never
	// logged and never read from ambient state deeper in the stack.
	secret := os.Getenv("QRTRAIL_SECRET")
	if secret == "" {
		log.Fatal("QRTRAIL_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv, err := server.New(db, server.Config{
		SigningSecret: []byte(secret),
		GeoBaseURL:    os.Getenv("QRTRAIL_GEO_URL"),
	}, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Expired rate-limit buckets accumulate if nobody sweeps them.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	go func() {
		logger.Info("qrtrail listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
