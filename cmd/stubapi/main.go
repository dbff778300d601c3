package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shehryarbajwa/testbed/internal/config"
	"github.com/shehryarbajwa/testbed/internal/ratelimit"
	"github.com/shehryarbajwa/testbed/internal/stubapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := config.NewLogger(os.Stderr, cfg.LogLevel)

	stubCfg := stubapi.Config{Logger: log}
	if cfg.RateLimit > 0 {
		stubCfg.Limiter = ratelimit.NewLimiter(cfg.RateLimit, 10)
	}

	srv := &http.Server{
		Addr:         cfg.StubAddr,
		Handler:      stubapi.NewRouter(stubCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("stub api listening", "addr", cfg.StubAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
