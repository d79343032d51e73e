// Package main is the entry point for the engagement worker.
//
// The worker hosts the engine's periodic maintenance jobs:
// - Rebuilding cached leaderboard snapshots for every journey type
// - Sweeping records left under legacy zero-padded user identifiers
// - Purging expired rows on storage backends without native TTL expiry
//
// The engine itself is a library; the worker is the only long-running
// process this module ships.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/canopy-press/canopy-engagement/config"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/notify"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/postgres"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/redis"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/sqlite"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/scheduler"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/scheduler/jobs"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logging.New(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	slog.SetDefault(log)

	log.Info("starting engagement worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"storage", string(cfg.Storage.Backend),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage...")
		closeStore()
	}()
	log.Info("storage ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TASK EXECUTOR
	// ─────────────────────────────────────────────────────────────────────────
	executor := tasks.NewPool(tasks.PoolConfig{
		Workers:       cfg.Tasks.Workers,
		TaskTimeout:   cfg.Tasks.Timeout,
		Logger:        log,
		EnableMetrics: true,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. NOTIFIER
	// ─────────────────────────────────────────────────────────────────────────
	notifier := notify.NewReliableNotifier(
		notify.NewLogNotifier(log),
		notify.ReliableConfig{Logger: log},
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ENGAGEMENT ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	flags := cfg.Features

	engineCfg := engagement.DefaultConfig()
	engineCfg.Store = store
	engineCfg.Executor = executor
	engineCfg.Notifier = notifier
	engineCfg.Logger = log
	engineCfg.JourneyTTL = cfg.Engine.JourneyTTL
	engineCfg.LeaderboardTTL = cfg.Engine.LeaderboardTTL
	engineCfg.LeaderboardSize = cfg.Engine.LeaderboardSize
	engineCfg.ListPageSize = cfg.Engine.ListPageSize
	engineCfg.FlatAward = cfg.Engine.FlatAward
	engineCfg.BonusMin = cfg.Engine.BonusMin
	engineCfg.BonusMax = cfg.Engine.BonusMax
	engineCfg.EnableRankBonuses = flags.IsEnabled(config.FeatureAwardsRankBonus, "")
	engineCfg.EnableNotifications = flags.IsEnabled(config.FeatureNotifyBadgeEarned, "")
	engineCfg.EnableLazyMigration = flags.IsEnabled(config.FeatureMigrationLazy, "")
	if !flags.IsEnabled(config.FeatureAwardsFlat, "") {
		engineCfg.FlatAward = 0
	}

	engine, err := engagement.New(engineCfg)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	log.Info("engagement engine ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

		refreshCfg := jobs.DefaultRefreshLeaderboardsConfig()
		refreshCfg.Timeout = cfg.Scheduler.JobTimeout
		refresh := jobs.NewRefreshLeaderboardsJob(engine.Leaderboard, log, refreshCfg)
		if err := sched.Register(refresh, scheduler.NewIntervalSchedule(cfg.Scheduler.LeaderboardRefreshInterval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", refresh.Name(), err)
		}

		if flags.IsEnabled(config.FeatureMigrationSweep, "") {
			sweepCfg := jobs.DefaultSweepLegacyKeysConfig()
			sweepCfg.Timeout = cfg.Scheduler.JobTimeout
			sweep := jobs.NewSweepLegacyKeysJob(engine.Identity, log, sweepCfg)
			if err := sched.Register(sweep, scheduler.NewIntervalSchedule(cfg.Scheduler.LegacySweepInterval)); err != nil {
				return fmt.Errorf("failed to register %s: %w", sweep.Name(), err)
			}
		} else {
			log.Info("legacy sweep disabled by feature flag")
		}

		purgeCfg := jobs.DefaultPurgeExpiredConfig()
		purgeCfg.Timeout = cfg.Scheduler.JobTimeout
		purge := jobs.NewPurgeExpiredJob(store, log, purgeCfg)
		if err := sched.Register(purge, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpiryPurgeInterval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", purge.Name(), err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, worker will only keep the engine alive")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. READY
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("engagement worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", "error", err)
		}
		if metrics := sched.GetMetrics(); metrics != nil {
			snapshot := metrics.Snapshot()
			log.Info("scheduler totals",
				"executions", snapshot.TotalExecutions,
				"failures", snapshot.TotalFailures,
			)
		}
	}

	if err := executor.Close(shutdownCtx); err != nil {
		log.Error("failed to drain task executor", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// openStore builds the configured key-value backend and returns it with its
// close function.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (kv.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory storage, state is lost on restart")
		return kv.NewMemory(), func() {}, nil

	case config.BackendRedis:
		rcfg := redis.DefaultConfig()
		rcfg.Host = cfg.Storage.Redis.Host
		rcfg.Port = cfg.Storage.Redis.Port
		rcfg.Password = cfg.Storage.Redis.Password
		rcfg.DB = cfg.Storage.Redis.DB
		rcfg.PoolSize = cfg.Storage.Redis.PoolSize
		rcfg.MinIdleConns = cfg.Storage.Redis.MinIdleConns
		rcfg.DialTimeout = cfg.Storage.Redis.DialTimeout
		rcfg.ReadTimeout = cfg.Storage.Redis.ReadTimeout
		rcfg.WriteTimeout = cfg.Storage.Redis.WriteTimeout

		store, err := redis.New(rcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendPostgres:
		pcfg := postgres.DefaultConfig()
		pcfg.Host = cfg.Storage.Postgres.Host
		pcfg.Port = cfg.Storage.Postgres.Port
		pcfg.Database = cfg.Storage.Postgres.Database
		pcfg.User = cfg.Storage.Postgres.User
		pcfg.Password = cfg.Storage.Postgres.Password
		pcfg.SSLMode = cfg.Storage.Postgres.SSLMode
		pcfg.MaxConns = int32(cfg.Storage.Postgres.MaxConns)
		pcfg.MinConns = int32(cfg.Storage.Postgres.MinConns)
		pcfg.MaxConnLifetime = cfg.Storage.Postgres.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.Storage.Postgres.ConnMaxIdleTime
		pcfg.ConnectTimeout = cfg.Storage.Postgres.ConnectTimeout

		store, err := postgres.New(ctx, pcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		return store, func() { store.Close() }, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("sqlite ping: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
