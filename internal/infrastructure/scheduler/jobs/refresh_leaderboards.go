// Package jobs contains the scheduled maintenance jobs of the engagement
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardsJob rebuilds the cached leaderboard snapshot for every
// journey type. Read paths serve whatever snapshot is cached, so a periodic
// rebuild keeps rankings from going stale between organic cache misses and
// re-arms the snapshot TTL under steady read load.
type RefreshLeaderboardsJob struct {
	// Dependencies
	index  *engagement.LeaderboardIndex
	logger *slog.Logger

	// Configuration
	config RefreshLeaderboardsConfig

	// State
	lastStats atomic.Value // *RefreshStats
}

// RefreshLeaderboardsConfig contains configuration for the refresh job.
type RefreshLeaderboardsConfig struct {
	// Types are the journey types to refresh (empty = all).
	Types []journey.Type

	// Timeout is the maximum duration for one refresh run.
	Timeout time.Duration
}

// DefaultRefreshLeaderboardsConfig returns sensible defaults.
func DefaultRefreshLeaderboardsConfig() RefreshLeaderboardsConfig {
	return RefreshLeaderboardsConfig{
		Types:   nil, // nil = all
		Timeout: 5 * time.Minute,
	}
}

// RefreshStats contains statistics from a refresh run.
type RefreshStats struct {
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	TypesProcessed int
	TotalEntries   int
	Errors         []error
}

// NewRefreshLeaderboardsJob creates a new refresh leaderboards job.
func NewRefreshLeaderboardsJob(
	index *engagement.LeaderboardIndex,
	logger *slog.Logger,
	config RefreshLeaderboardsConfig,
) *RefreshLeaderboardsJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshLeaderboardsJob{
		index:  index,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *RefreshLeaderboardsJob) Name() string {
	return "refresh_leaderboards"
}

// Description returns a human-readable description.
func (j *RefreshLeaderboardsJob) Description() string {
	return "Rebuilds and re-caches the leaderboard snapshot for every journey type"
}

// Run executes the refresh job.
func (j *RefreshLeaderboardsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RefreshStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	types := j.config.Types
	if len(types) == 0 {
		types = journey.Types()
	}

	for _, t := range types {
		snapshot, err := j.index.Refresh(ctx, t)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("%s: %w", t, err))
			j.logger.Error("failed to refresh leaderboard",
				"journey_type", t.String(),
				"error", err,
			)
			continue
		}

		stats.TypesProcessed++
		stats.TotalEntries += len(snapshot.Entries)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("refresh_leaderboards job completed",
		"duration", stats.Duration.String(),
		"types_processed", stats.TypesProcessed,
		"total_entries", stats.TotalEntries,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("refresh completed with %d errors", len(stats.Errors))
	}

	return nil
}

// LastRefreshStats returns statistics from the last refresh run.
func (j *RefreshLeaderboardsJob) LastRefreshStats() *RefreshStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RefreshStats)
}
