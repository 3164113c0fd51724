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

	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PaulBabatuyi/PhotoShare/internal/calendar"
	"github.com/PaulBabatuyi/PhotoShare/internal/config"
	"github.com/PaulBabatuyi/PhotoShare/internal/metadata"
	"github.com/PaulBabatuyi/PhotoShare/internal/observability"
	"github.com/PaulBabatuyi/PhotoShare/internal/service"
	"github.com/PaulBabatuyi/PhotoShare/internal/storage"
	"github.com/PaulBabatuyi/PhotoShare/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.InitLogger(cfg.LogDev)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Observability
	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var tp *trace.TracerProvider
	if cfg.TracingEnabled {
		tp, err = observability.InitTracerProvider(ctx, logger)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
	}

	// 2. Pipeline
	extractor := metadata.NewExtractor(logger.Named("metadata"))
	fileStorage, err := storage.NewFilesystemStorage(cfg.DataDir, extractor)
	if err != nil {
		return err
	}

	policy, err := calendar.ParsePolicy(cfg.DatePolicy)
	if err != nil {
		return err
	}
	aggregator := calendar.New(policy, logger.Named("calendar"))

	// 3. HTTP
	fileServer := service.NewFileServer(fileStorage, aggregator, extractor, metrics, logger, service.Options{
		APIKey:               cfg.APIKey,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           observability.TraceHandler(fileServer.Routes(), tp),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	statsWorker := worker.NewStatsWorker(&worker.WorkerConfig{
		Source:       fileStorage,
		Sink:         metrics,
		Logger:       logger.Named("stats"),
		PollInterval: cfg.StatsInterval,
	})

	// 4. Run until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			zap.String("addr", httpServer.Addr),
			zap.String("data_dir", cfg.DataDir),
			zap.String("date_policy", string(policy)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return statsWorker.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		observability.ShutdownTracerProvider(shutdownCtx, tp, logger)
		return err
	})

	return g.Wait()
}
