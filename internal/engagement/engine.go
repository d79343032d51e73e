// Package engagement implements the engagement engine: per-user signal
// trackers, a badge registry with automatic grants, impact point balances,
// activity journeys with expiring streaks, and cached leaderboards. All
// state lives in a key-value store with single-key atomicity and no
// transactions, so every operation is idempotent or additive and concurrent
// writers converge instead of coordinating.
package engagement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/notify"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// Engine bundles the engagement services over one store.
type Engine struct {
	Identity    *Migrator
	Grants      *Grants
	Trackers    *TrackerStore
	Points      *PointsLedger
	Journeys    *JourneyStore
	Leaderboard *LeaderboardIndex
	Badges      *BadgeEngine
}

// Config contains configuration for the engine.
// Start from DefaultConfig and override what differs.
type Config struct {
	Store    kv.Store
	Executor tasks.Executor
	Notifier notify.Notifier
	Clock    timeutil.Clock

	// Logger for structured logging.
	Logger *slog.Logger

	// JourneyTTL is how long a journey record lives without an increment.
	JourneyTTL time.Duration

	// LeaderboardTTL is how long a cached leaderboard snapshot is served.
	LeaderboardTTL time.Duration

	// LeaderboardSize is how many entries a snapshot keeps.
	LeaderboardSize int

	// ListPageSize is the page size for store listings (sweeps, rebuilds).
	ListPageSize int

	// FlatAward is the points credited for every journey increment.
	FlatAward int64

	// BonusMin and BonusMax bound the journey rank bonus.
	BonusMin int
	BonusMax int

	// EnableRankBonuses schedules rank bonus awards on journey increments.
	EnableRankBonuses bool

	// EnableNotifications schedules notifications for earned badges.
	EnableNotifications bool

	// EnableLazyMigration moves legacy records to canonical keys when a
	// fallback read finds them, instead of waiting for the sweep.
	EnableLazyMigration bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		JourneyTTL:          journey.DefaultTTL,
		LeaderboardTTL:      5 * time.Minute,
		LeaderboardSize:     10,
		ListPageSize:        kv.DefaultListLimit,
		FlatAward:           1,
		BonusMin:            1,
		BonusMax:            10,
		EnableRankBonuses:   true,
		EnableNotifications: true,
		EnableLazyMigration: true,
	}
}

// New wires the engagement services over the configured store.
func New(config Config) (*Engine, error) {
	if config.Store == nil {
		return nil, errors.New("engagement: store is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	executor := config.Executor
	if executor == nil {
		executor = tasks.NewInline(logger)
	}
	notifier := config.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	migrator := NewMigrator(MigratorConfig{
		Store:    config.Store,
		PageSize: config.ListPageSize,
		Logger:   logger,
	})

	var lazy *Migrator
	if config.EnableLazyMigration {
		lazy = migrator
	}

	grants := NewGrants(GrantsConfig{
		Store:    config.Store,
		Clock:    clock,
		Migrator: lazy,
		Logger:   logger,
	})

	ledger := NewPointsLedger(PointsLedgerConfig{
		Store:    config.Store,
		Clock:    clock,
		Migrator: lazy,
		Logger:   logger,
	})

	trackers := NewTrackerStore(TrackerStoreConfig{
		Store:    config.Store,
		Grants:   grants,
		Clock:    clock,
		Migrator: lazy,
		Logger:   logger,
	})

	board := NewLeaderboardIndex(LeaderboardIndexConfig{
		Store:    config.Store,
		Clock:    clock,
		Migrator: lazy,
		Logger:   logger,
		Size:     config.LeaderboardSize,
		TTL:      config.LeaderboardTTL,
		PageSize: config.ListPageSize,
	})

	journeys := NewJourneyStore(JourneyStoreConfig{
		Store:             config.Store,
		Ledger:            ledger,
		Leaderboard:       board,
		Executor:          executor,
		Clock:             clock,
		Migrator:          lazy,
		Logger:            logger,
		TTL:               config.JourneyTTL,
		FlatAward:         config.FlatAward,
		BonusMin:          config.BonusMin,
		BonusMax:          config.BonusMax,
		EnableRankBonuses: config.EnableRankBonuses,
	})

	badges := NewBadgeEngine(BadgeEngineConfig{
		Grants:              grants,
		Trackers:            trackers,
		Ledger:              ledger,
		Notifier:            notifier,
		Executor:            executor,
		Clock:               clock,
		Logger:              logger,
		EnableNotifications: config.EnableNotifications,
	})

	return &Engine{
		Identity:    migrator,
		Grants:      grants,
		Trackers:    trackers,
		Points:      ledger,
		Journeys:    journeys,
		Leaderboard: board,
		Badges:      badges,
	}, nil
}

// Track is the combined write path: record signals against a tracker, then
// evaluate and grant the badges bound to it. It returns the ids of badges
// granted by this call.
func (e *Engine) Track(ctx context.Context, userID, trackerID string, values []tracker.Value, since time.Time) ([]string, error) {
	if err := e.Trackers.AddProgress(ctx, userID, trackerID, values); err != nil {
		return nil, err
	}
	return e.Badges.CheckAndGrant(ctx, userID, trackerID, since)
}
