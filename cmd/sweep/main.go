// Package main is a one-shot administrative tool that migrates records
// stored under legacy zero-padded user identifiers to their canonical keys.
//
// The sweep is authority-checked like every administrative command: the
// caller's token comes from ADMIN_TOKEN and must match the configured
// ADMIN_TOKEN_HASH. Pass -dry-run to report what would move without
// writing anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/canopy-press/canopy-engagement/config"
	"github.com/canopy-press/canopy-engagement/internal/application/command"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/postgres"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/redis"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/sqlite"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be migrated without moving anything")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore()

	migrator := engagement.NewMigrator(engagement.MigratorConfig{
		Store:    store,
		PageSize: cfg.Engine.ListPageSize,
		Logger:   log,
	})

	authority := command.NewAuthority(cfg.Admin.TokenHash)
	handler := command.NewMigrateLegacyHandler(authority, migrator)

	result, err := handler.Handle(ctx, command.MigrateLegacyCommand{
		AuthorityToken: os.Getenv("ADMIN_TOKEN"),
		DryRun:         dryRun,
	})
	if err != nil {
		return err
	}

	mode := ""
	if result.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("scanned %d keys, migrated %d, failed %d%s\n",
		result.Scanned, result.Migrated, result.Failed, mode)

	return nil
}

// openStore builds the configured key-value backend and returns it with its
// close function.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (kv.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory storage, a sweep over it is a no-op across runs")
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
