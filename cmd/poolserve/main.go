// Command poolserve serves a two-page static site, handing every accepted
// connection to a fixed-size thread pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/poolserve/internal/config"
	"github.com/vnykmshr/poolserve/internal/server"
	"github.com/vnykmshr/poolserve/pkg/metrics"
	"github.com/vnykmshr/poolserve/pkg/threadpool"
)

const (
	appName         = "poolserve"
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("poolserve failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	logger = logger.With("app", appName)
	slog.SetDefault(logger)

	poolConfig, err := cfg.PoolConfig(logger)
	if err != nil {
		return err
	}

	var (
		exec         threadpool.Executor
		registry     *metrics.Registry
		promGatherer *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		promGatherer = prometheus.NewRegistry()
		promGatherer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mp := threadpool.NewWithConfigAndMetrics(poolConfig, appName, metrics.Config{
			Enabled:  true,
			Registry: promGatherer,
		})
		exec, registry = mp, mp.Registry()
	} else {
		pool, err := threadpool.NewWithConfigSafe(poolConfig)
		if err != nil {
			return err
		}
		exec = pool
	}
	defer func() {
		if err := exec.Close(); err != nil {
			logger.Error("pool close failed", "error", err)
		}
		logger.Info("pool closed")
	}()

	opts := []server.Option{server.WithLogger(logger)}
	if registry != nil {
		opts = append(opts, server.WithMetrics(registry))
	}
	srv, err := server.New(cfg.Server, exec, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if promGatherer != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, promGatherer, logger)
		})
	}

	logger.Info("poolserve started",
		"workers", cfg.Workers,
		"fault_policy", cfg.FaultPolicy,
		"addr", cfg.Server.Addr,
		"metrics", cfg.Metrics.Enabled,
	)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// serveMetrics exposes gatherer on /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
