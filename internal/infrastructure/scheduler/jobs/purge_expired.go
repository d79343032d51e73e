package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE EXPIRED JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeExpiredJob deletes expired rows from SQL-backed stores. Those stores
// hide expired records from reads immediately but keep the rows until a
// purge reclaims them. Backends with native expiry (memory, redis) do not
// implement kv.Purger and the job is a no-op for them.
type PurgeExpiredJob struct {
	// Dependencies
	store  kv.Store
	logger *slog.Logger

	// Configuration
	config PurgeExpiredConfig

	// State
	lastStats atomic.Value // *PurgeStats
}

// PurgeExpiredConfig contains configuration for the purge job.
type PurgeExpiredConfig struct {
	// Timeout is the maximum duration for one purge run.
	Timeout time.Duration
}

// DefaultPurgeExpiredConfig returns sensible defaults.
func DefaultPurgeExpiredConfig() PurgeExpiredConfig {
	return PurgeExpiredConfig{
		Timeout: time.Minute,
	}
}

// PurgeStats contains statistics from a purge run.
type PurgeStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Purged      int
}

// NewPurgeExpiredJob creates a new expired-record purge job.
func NewPurgeExpiredJob(
	store kv.Store,
	logger *slog.Logger,
	config PurgeExpiredConfig,
) *PurgeExpiredJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &PurgeExpiredJob{
		store:  store,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *PurgeExpiredJob) Name() string {
	return "purge_expired"
}

// Description returns a human-readable description.
func (j *PurgeExpiredJob) Description() string {
	return "Deletes expired rows from stores without native TTL expiry"
}

// Run executes the purge job.
func (j *PurgeExpiredJob) Run(ctx context.Context) error {
	purger, ok := j.store.(kv.Purger)
	if !ok {
		j.logger.Debug("store expires records natively, nothing to purge")
		return nil
	}

	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	purged, err := purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge expired records: %w", err)
	}

	stats := &PurgeStats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Purged:      purged,
	}
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	if purged > 0 {
		j.logger.Info("purge_expired job completed",
			"duration", stats.Duration.String(),
			"purged", purged,
		)
	}

	return nil
}

// LastPurgeStats returns statistics from the last purge run.
func (j *PurgeExpiredJob) LastPurgeStats() *PurgeStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*PurgeStats)
}
