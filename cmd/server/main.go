package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tournament-voting-backend/internal/config"
	"github.com/DoyleJ11/tournament-voting-backend/internal/httpapi"
	"github.com/DoyleJ11/tournament-voting-backend/internal/hub"
	"github.com/DoyleJ11/tournament-voting-backend/internal/lobby"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
	"github.com/DoyleJ11/tournament-voting-backend/internal/metrics"
	"github.com/DoyleJ11/tournament-voting-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events store.EventStore = store.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		events = pg
		logger.Info("using postgres event store")
	} else {
		logger.Warn("DATABASE_URL not set; tournaments are kept in memory only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := hub.NewHub(ctx, hub.Config{
		Rules: lobby.Rules{
			RoundDuration: cfg.RoundDuration,
			VoteThreshold: cfg.VoteThreshold,
		},
		Store:   events,
		Logger:  logger,
		Metrics: metrics.New(reg),
	})

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, logger, reg),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	// the hub shares ctx, so its lobbies are already stopping
	<-h.Done()
	return nil
}
