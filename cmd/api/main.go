// Command api is the PCOS tracker API server. Besides HTTP it runs the
// outbox dispatch worker, the reminder scheduler, the cycle change listener
// and the maintenance tickers.
//
// Usage:
//
//	pcos-api
//	API_PORT=8080 pcos-api

// @title PCOS Tracker API
// @version 1.0.0
// @description Cycle prediction and preference-gated notifications for the PCOS tracker.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Ovaria
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/api"
	"github.com/ovaria/pcos-tracker/internal/api/handler"
	"github.com/ovaria/pcos-tracker/internal/cache"
	"github.com/ovaria/pcos-tracker/internal/config"
	"github.com/ovaria/pcos-tracker/internal/cycles"
	"github.com/ovaria/pcos-tracker/internal/db"
	"github.com/ovaria/pcos-tracker/internal/dedup"
	"github.com/ovaria/pcos-tracker/internal/events"
	"github.com/ovaria/pcos-tracker/internal/listener"
	"github.com/ovaria/pcos-tracker/internal/logger"
	"github.com/ovaria/pcos-tracker/internal/maintenance"
	"github.com/ovaria/pcos-tracker/internal/notifications"
	"github.com/ovaria/pcos-tracker/internal/prediction"
	"github.com/ovaria/pcos-tracker/internal/reminders"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("API exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.AutoMigrate {
		n, err := db.Migrate(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("Migrations up to date", zap.Int("applied", n))
	}

	log.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	log.Info("Database connected",
		zap.Int("min_conns", cfg.DBPoolMinConns),
		zap.Int("max_conns", cfg.DBPoolMaxConns))

	appCache := cache.New(cfg.CacheEnabled)
	log.Info("Cache initialized", zap.Bool("enabled", cfg.CacheEnabled))

	store := notifications.NewPGStore(pool.Pool)
	cycleStore := cycles.NewPGStore(pool.Pool)
	predictor := prediction.New(rules.Prediction)
	svc := notifications.NewService(store, rules.QuietHoursPolicy, log.Named("notifications"))

	// Outbox dispatch to the broker
	publisher := newPublisher(cfg, log)
	defer publisher.Close()
	if cfg.DispatchEnabled {
		go notifications.StartWorker(ctx, store, publisher, log.Named("dispatch"))
	} else {
		log.Info("Notification dispatch worker disabled (DISPATCH_ENABLED=false)")
	}

	// Reminder scheduler
	if cfg.RemindersEnabled {
		claimer := newClaimer(ctx, cfg, log)
		runner := reminders.NewRunner(store, cycleStore, predictor, svc, claimer,
			rules.Reminders, cfg.ReminderWorkers, log.Named("reminders"))
		sched, err := reminders.NewScheduler(runner, cfg.ReminderCron, cfg.ReminderTimeout, log.Named("reminders"))
		if err != nil {
			return err
		}
		go sched.Start(ctx)
	} else {
		log.Info("Reminder scheduler disabled (REMINDERS_ENABLED=false)")
	}

	// LISTEN/NOTIFY consumer for cross-instance cache invalidation
	go listener.Start(ctx, cfg.DatabaseURL, appCache, log.Named("listener"))

	mcfg := maintenance.DefaultConfig()
	mcfg.CleanupInterval = cfg.CleanupInterval
	go maintenance.Start(ctx, svc, appCache, mcfg, log.Named("maintenance"))

	router := api.NewRouter(handler.Deps{
		DB:            pool,
		Cache:         appCache,
		Cycles:        cycleStore,
		Notifications: svc,
		Predictor:     predictor,
		PredictionTTL: cfg.PredictionCacheTTL,
		Logger:        log.Named("http"),
	}, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting PCOS Tracker API",
			zap.String("addr", addr),
			zap.String("environment", cfg.Environment),
			zap.String("docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
	}
	log.Info("Server stopped")
	return nil
}

func newPublisher(cfg *config.Config, log *zap.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		log.Info("Event publishing disabled (no AMQP_URL)")
		return events.NopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL)
	if err != nil {
		log.Warn("AMQP unavailable, events will not be published", zap.Error(err))
		return events.NopPublisher{}
	}
	log.Info("AMQP publisher connected", zap.String("exchange", events.ExchangeName))
	return p
}

func newClaimer(ctx context.Context, cfg *config.Config, log *zap.Logger) dedup.Claimer {
	if cfg.RedisAddr == "" {
		log.Info("Reminder dedup is in-process (no REDIS_ADDR)")
		return dedup.NewMemoryClaimer()
	}
	rdb, err := dedup.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn("Redis unavailable, reminder dedup is in-process", zap.Error(err))
		return dedup.NewMemoryClaimer()
	}
	log.Info("Redis dedup connected", zap.String("addr", cfg.RedisAddr))
	return dedup.NewRedisClaimer(rdb, log.Named("dedup"))
}
