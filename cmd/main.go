/*
Package main is the entry point for the DuoChat server.

It is responsible for loading configuration, initializing the global logging system,
building the relay state and Coordinator, setting up the HTTP server, and gracefully
handling operating system interrupt signals (SIGINT, SIGTERM) so live connections are
closed cleanly on shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duochat/internal/app/chat"
	"duochat/internal/app/session"
	"duochat/internal/app/user"
	"duochat/internal/configs"
	"duochat/internal/handler"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/pow"
)

func main() {
	// Load configuration from .env and environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())

	registry, err := user.NewRegistry(cfg.Users)
	if err != nil {
		logx.Fatal(err, "Invalid CHAT_USERS configuration")
	}

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Strs("members", registry.Members()).
		Str("static_dir", cfg.StaticDir).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewStore(cfg.JWTSecret)
	coordinator := chat.NewCoordinator(chat.NewState(registry, sessions))

	powManager := pow.NewManager(cfg.PowDifficulty)
	defer powManager.Stop()

	limiters := handler.NewLimiters()
	defer limiters.Stop()

	router := handler.Router(&handler.AppDeps{
		Coordinator: coordinator,
		Sessions:    sessions,
		Registry:    registry,
		Pow:         powManager,
		Config:      cfg,
	}, limiters)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("DuoChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	// Hijacked WebSocket connections are not tracked by server.Shutdown; close them first.
	coordinator.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
