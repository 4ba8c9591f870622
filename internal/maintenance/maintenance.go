// Package maintenance runs periodic background tasks as Go tickers: purging
// old read notifications and reporting prediction cache size.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/metrics"
)

// Cleaner deletes expired notifications. *notifications.Service implements it.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// CacheStats reports cache size. *cache.Cache implements it.
type CacheStats interface {
	Stats() cache.Stats
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	CleanupInterval    time.Duration // Read notifications older than the retention age
	CacheStatsInterval time.Duration // Cache size gauge and log line
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:    1 * time.Hour,
		CacheStatsInterval: 5 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, cleaner Cleaner, stats CacheStats, cfg Config, logger *zap.Logger) {
	logger.Info("Maintenance tickers started",
		zap.Duration("cleanup", cfg.CleanupInterval),
		zap.Duration("cache_stats", cfg.CacheStatsInterval))

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { Cleanup(ctx, cleaner, logger) })
	}

	if cfg.CacheStatsInterval > 0 && stats != nil {
		t := time.NewTicker(cfg.CacheStatsInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { reportCache(stats, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// Cleanup runs one purge of old read notifications. Errors are logged.
func Cleanup(ctx context.Context, cleaner Cleaner, logger *zap.Logger) int64 {
	n, err := cleaner.Cleanup(ctx)
	if err != nil {
		logger.Warn("Cleanup: failed to purge old notifications", zap.Error(err))
		return 0
	}
	metrics.RecordCleanup(n)
	if n > 0 {
		logger.Info("Cleanup: purged old notifications", zap.Int64("count", n))
	}
	return n
}

func reportCache(stats CacheStats, logger *zap.Logger) {
	s := stats.Stats()
	metrics.SetCacheKeys(s.ActiveKeys)
	logger.Debug("Prediction cache",
		zap.Int("active", s.ActiveKeys),
		zap.Int("expired", s.ExpiredKeys),
		zap.Uint64("hits", s.Hits),
		zap.Uint64("misses", s.Misses))
}
