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

	"mediagrab/internal/config"
	"mediagrab/internal/handlers"
	"mediagrab/internal/pathchooser"
	"mediagrab/internal/session"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	var app *handlers.App
	orch := session.New(session.Options{
		BackendURL:         cfg.BackendURL,
		Debounce:           cfg.Debounce(),
		ScanRetry:          cfg.ScanRetry(),
		ReconnectDelay:     cfg.ReconnectDelay(),
		CompletionDwell:    cfg.CompletionDwell(),
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		Logger:             logger,
		OnEvent: func(ev session.Event) {
			if app != nil {
				app.Broadcast(ev)
			}
		},
	})

	var chooser session.PathChooser
	if cfg.ChooserURL != "" {
		chooser = pathchooser.New(cfg.ChooserURL, nil, logger)
	}
	app = handlers.NewApp(logger, orch, chooser)
	orch.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("bridge started", "addr", cfg.Addr, "backend", cfg.BackendURL, "session", orch.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	if err := orch.Close(); err != nil {
		logger.Warn("close backend connection", "error", err)
	}
	logger.Info("bridge stopped")
}
