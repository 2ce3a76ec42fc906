package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bru02/zhm/server/internal/api"
	"github.com/bru02/zhm/server/internal/config"
	"github.com/bru02/zhm/server/internal/metrics"
	"github.com/bru02/zhm/server/internal/room"
	"github.com/bru02/zhm/server/internal/storage"
)

// shutdownTimeout bounds how long in-flight requests get to finish.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; defaults are used when it does not exist")
	uiDir := flag.String("ui-dir", "", "serve the viewer UI static files from this directory (e.g. ui/dist); leave empty to disable")
	flag.Parse()

	load := config.LoadOrDefault
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			load = config.Load
		}
	})
	cfg, err := load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("relay-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"prefix", cfg.Server.Prefix,
		"retention", cfg.Server.Retention,
		"storage", cfg.Server.Storage.Backend,
	)

	if err := run(cfg.Server, *uiDir); err != nil {
		slog.Error("relay-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, uiDir string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := storage.New(cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := metrics.New()
	rooms := room.NewManager(backend, room.Options{
		Retention:  cfg.Retention,
		SendBuffer: cfg.Rooms.SendBuffer,
		Metrics:    reg,
	}, cfg.Rooms.IdleTimeout)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.New(rooms, reg, cfg.Prefix, uiDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rooms.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("relay-server shutting down")
		// Hijacked WebSocket connections are not tracked by Shutdown.
		rooms.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
