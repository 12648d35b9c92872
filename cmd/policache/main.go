// Spins up the policache server: a bounded cache with a pluggable eviction policy in front of a backing store,
// compatible w/ the Redis protocol.

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

	"github.com/nobletooth/policache/pkg/cache"
	"github.com/nobletooth/policache/pkg/config"
	"github.com/nobletooth/policache/pkg/port"
	"github.com/nobletooth/policache/pkg/storage"
	"github.com/nobletooth/policache/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var (
	printVersion   = flag.Bool("print_version", false, "Print the version and exit.")
	metricsAddress = flag.String("metrics_address", ":9090",
		"The ip:port serving prometheus metrics on /metrics; empty disables it.")
)

const shutdownTimeout = 10 * time.Second

// serveMetrics exposes the prometheus registry until `ctx` is cancelled.
func serveMetrics(ctx context.Context) error {
	if *metricsAddress == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *metricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down metrics server.", "err", err)
		}
	}()
	slog.Info("Serving metrics.", "address", *metricsAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server stopped: %w", err)
	}
	return nil
}

func run(ctx context.Context) error {
	// The persister outlives the servers so pending writes can still be flushed on shutdown.
	persistCtx, stopPersisting := context.WithCancel(context.Background())
	defer stopPersisting()

	store, err := storage.NewStoreFromFlags(ctx)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close store.", "err", err)
		}
	}()

	layer, err := cache.NewFromFlags(persistCtx, store)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return port.RunRedisServer(groupCtx, layer) })
	group.Go(func() error { return serveMetrics(groupCtx) })
	serveErr := group.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := layer.Flush(flushCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("failed to flush pending store operations: %w", err))
	}
	return serveErr
}

func main() {
	configErr := config.InitFlags()
	utils.InitLogging()
	if configErr != nil {
		slog.Error("Failed to load config.", "err", configErr)
		os.Exit(1)
	}

	if *printVersion {
		slog.Info("Policache build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("Policache server stopped.", "err", err, "uptime", utils.Uptime())
		os.Exit(1)
	}
	slog.Info("Policache server stopped.", "uptime", utils.Uptime())
}
