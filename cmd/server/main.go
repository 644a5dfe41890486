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

	"example/healing-api/app"
	"example/healing-api/app/config"
	"example/healing-api/app/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	zl := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = zl.Sync() }()
	log := logger.NewZapAdapter(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	rt.Sweeper.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.App.Port),
		Handler:           rt.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", map[string]interface{}{
			"addr":        srv.Addr,
			"environment": cfg.App.Environment,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := rt.Close(); err != nil {
		log.Error("close failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("server stopped", nil)
}
