// Package main is the deskd host process: it owns the IPC command registry,
// the event exchange, the AppBus broker, and the WebSocket gateway that app
// frontends connect to.
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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deskd/deskd/internal/common/config"
	"github.com/deskd/deskd/internal/common/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting deskd host")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus, err := provideBus(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize host bus", zap.Error(err))
	}
	defer bus.Close()

	store, err := provideStorage(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	svcs, err := buildServices(cfg, bus, store, log)
	if err != nil {
		log.Fatal("Failed to build services", zap.Error(err))
	}
	defer svcs.appBus.Stop()

	server := buildServer(cfg, svcs, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svcs.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info("Gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Host exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("deskd host stopped")
}
