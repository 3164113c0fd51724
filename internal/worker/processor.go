package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// UsageSource reports how many files the storage root holds and their size.
type UsageSource interface {
	Usage() (count int, bytes int64, err error)
}

// UsageSink receives the latest storage usage.
type UsageSink interface {
	SetStorageUsage(files int, bytes int64)
}

type WorkerConfig struct {
	Source       UsageSource
	Sink         UsageSink
	Logger       *zap.Logger
	PollInterval time.Duration
}

// StatsWorker periodically measures the storage root and publishes the
// numbers to the metrics sink. It only reads.
type StatsWorker struct {
	config *WorkerConfig
	done   chan struct{}
}

func NewStatsWorker(config *WorkerConfig) *StatsWorker {
	if config.PollInterval == 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &StatsWorker{
		config: config,
		done:   make(chan struct{}),
	}
}

// Run measures once immediately, then on every tick until ctx is cancelled
// or Stop is called.
func (sw *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.config.PollInterval)
	defer ticker.Stop()

	sw.config.Logger.Info("stats worker started", zap.Duration("interval", sw.config.PollInterval))
	sw.refresh()

	for {
		select {
		case <-ctx.Done():
			sw.config.Logger.Info("stats worker stopped")
			return nil
		case <-sw.done:
			sw.config.Logger.Info("stats worker stopped")
			return nil
		case <-ticker.C:
			sw.refresh()
		}
	}
}

func (sw *StatsWorker) Stop() {
	close(sw.done)
}

func (sw *StatsWorker) refresh() {
	count, size, err := sw.config.Source.Usage()
	if err != nil {
		sw.config.Logger.Error("failed to measure storage", zap.Error(err))
		return
	}
	sw.config.Sink.SetStorageUsage(count, size)
}
