package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "sentinel/internal/adapters/http"
	"sentinel/internal/app"
	"sentinel/internal/config"
	"sentinel/internal/logging"
	scanworker "sentinel/internal/workers/scanrunner"
)

func main() {
	cfg, err := config.Load()
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	runner := scanworker.New(log)
	go runner.Run(ctx)

	srv := httpadapter.New(a.Scanner, runner,
		httpadapter.WithLogger(log),
		httpadapter.WithMetricsHandler(a.Metrics.Handler()),
	)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	hs := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	// graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		cancel()
		runner.Wait()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			a.Close()
			os.Exit(1)
		}
	}
}
