package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tunneldeck-console/internal/config"
	"tunneldeck-console/internal/console"
	"tunneldeck-console/internal/events"
	"tunneldeck-console/internal/session"
	"tunneldeck-console/internal/state"
	"tunneldeck-console/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize state database
	log.Printf("Initializing state at %s", cfg.StatePath)
	st, err := state.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("Failed to initialize state: %v", err)
	}
	defer st.Close()

	// Transport and session wiring: the client broadcasts classified
	// failures on the bus; the session store listens and is the only
	// writer of the client's token slot.
	bus := events.NewBus()
	client := upstream.New(cfg.UpstreamURL, cfg.Timeout(), bus)
	store := session.New(client, st, bus, session.Options{
		ExpiryCheckInterval: cfg.ExpiryInterval(),
		HealthCheckInterval: cfg.HealthInterval(),
		RenewThreshold:      cfg.Threshold(),
		RenewWindow:         cfg.Window(),
	})
	defer store.Close()

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	// API routes
	apiGroup := e.Group("/api")
	console.NewHandler(store, client).RegisterRoutes(apiGroup)

	// Serve the built frontend when configured
	if cfg.StaticDir != "" {
		e.Static("/", cfg.StaticDir)
	}

	go func() {
		log.Printf("Starting Tunneldeck console on %s (upstream %s)", cfg.Listen, cfg.UpstreamURL)
		if err := e.Start(cfg.Listen); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Console server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
