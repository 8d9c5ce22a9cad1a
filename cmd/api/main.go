package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teknowguy/autopilot-backend/internal/app"
	"github.com/teknowguy/autopilot-backend/internal/config"
	"github.com/teknowguy/autopilot-backend/internal/log"
)

const version = "v1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting autopilot API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", version,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buildCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.Build(buildCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatalw("Failed to build services", "error", err)
	}
	defer a.Close()

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// WriteTimeout stays zero so SSE and WebSocket streams are not cut off;
	// per-route timeouts are set by the router.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})

	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			logger.Infow("Starting schedule poller", "interval", cfg.Scheduler.Interval)
			return a.Poller.Start(gctx)
		})
	} else {
		logger.Warnw("Schedule poller disabled, scheduled posts will not deploy on their own")
	}

	g.Go(func() error {
		logger.Infow("API server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("Shutdown signal received")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Server stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Infow("Server stopped")
}
