package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Artfain/chainsim/api"
	"github.com/Artfain/chainsim/config"
	"github.com/Artfain/chainsim/core"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	journal, err := openJournal(cfg.Journal.Backend, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	state, err := core.NewState(cfg.StateConfig(), journal, logger.With("component", "state"))
	if err != nil {
		return err
	}
	defer state.Close()

	opts := api.DefaultOptions()
	opts.HandshakeLimit = rate.Every(time.Minute / time.Duration(cfg.Limits.HandshakesPerMinute))
	opts.HandshakeBurst = cfg.Limits.HandshakeBurst
	opts.MineLimit = rate.Limit(cfg.Limits.MinesPerSecond)
	opts.MineBurst = cfg.Limits.MineBurst

	server := api.NewServer(state, opts, logger.With("component", "api"))
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      server.Handler(cfg.HTTP.StaticDir),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server running",
			"addr", cfg.HTTP.ListenAddr,
			"blocks", cfg.Chain.Blocks,
			"difficulty", cfg.Chain.Difficulty,
			"hash", cfg.Chain.Hash,
			"journal", cfg.Journal.Backend,
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openJournal(backend string, logger *slog.Logger) (core.Journal, error) {
	switch backend {
	case "badger":
		return core.NewBadgerJournal(logger)
	default:
		return core.NewLevelJournal()
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
