// Package main is the entry point for the haunted rating API server.
//
// It loads configuration, wires the weather and places adapters behind
// resilient HTTP clients, builds the rating engine and session manager, and
// serves the API with the core chassis (middleware, routing, health).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"hauntedmap/internal/api/handlers"
	"hauntedmap/internal/config"
	"hauntedmap/internal/core"
	"hauntedmap/internal/environment"
	"hauntedmap/internal/external"
	"hauntedmap/internal/places"
	"hauntedmap/internal/rating"
	"hauntedmap/internal/session"
	"hauntedmap/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("hauntedmap API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	// Upstream adapters behind retrying, circuit-breaking clients.
	weatherClient := external.NewClient(
		&http.Client{Timeout: cfg.Weather.Timeout},
		"open-meteo",
		types.ErrCodeUpstreamWeather,
		external.DefaultRetryPolicy(),
	)
	openMeteo := environment.NewOpenMeteoClient(cfg.Weather.BaseURL, weatherClient)
	envService := environment.NewService(openMeteo, cfg.Weather.CacheTTL, logger)

	placesClient := external.NewClient(
		&http.Client{Timeout: cfg.Places.Timeout},
		"nominatim",
		types.ErrCodeUpstreamGeocoding,
		external.DefaultRetryPolicy(),
		external.WithUserAgent(cfg.Places.UserAgent),
	)
	nominatim := places.NewNominatimClient(cfg.Places.BaseURL, placesClient)
	resolver := places.NewResolver(nominatim, cfg.Places.NearbyLimit, logger)

	engine := rating.NewEngine()

	fallback := session.NewFallbackCache(cfg.Session.FallbackTTL, nil)
	manager := session.NewManager(envService, resolver, engine, fallback,
		cfg.Session.RefreshInterval, cfg.Session.StaleAfter, cfg.Session.SweepInterval, logger)
	defer manager.Close()

	// Build the server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Sessions = manager

	ratingsHandler := handlers.NewRatingsHandler(envService, resolver, engine, logger)
	sessionsHandler := handlers.NewSessionsHandler(manager, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/ratings", ratingsHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/sessions", sessionsHandler.RegisterRoutes) },
	)

	var limiter *core.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = core.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window, nil)
	}
	srv.MountRoutes(limiter)

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
