package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/justsurfingit/jobpilot/internal/app"
	"github.com/justsurfingit/jobpilot/internal/config"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Wire storage, services and routes
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Startup failed: ", err)
	}

	// 3. Background workers (Gmail watcher, reminder notifier)
	application.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams end with ctx, otherwise Shutdown would wait on them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("🚀 Server starting on port %s...", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("❌ Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
		srv.Close()
	}
	if err := application.Close(shutdownCtx); err != nil {
		log.Printf("⚠️  Shutdown: %v", err)
	}
	log.Println("👋 Bye")
}
