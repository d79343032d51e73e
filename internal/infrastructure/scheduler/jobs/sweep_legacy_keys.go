package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP LEGACY KEYS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SweepLegacyKeysJob walks every key family and moves records still stored
// under zero-padded legacy user identifiers to their canonical keys. Lazy
// read-path migration only converges users who are still active; the sweep
// catches the rest so the legacy fallback can eventually be retired.
type SweepLegacyKeysJob struct {
	// Dependencies
	migrator *engagement.Migrator
	logger   *slog.Logger

	// Configuration
	config SweepLegacyKeysConfig

	// State
	lastStats atomic.Value // *SweepStats
}

// SweepLegacyKeysConfig contains configuration for the sweep job.
type SweepLegacyKeysConfig struct {
	// Timeout is the maximum duration for one sweep run.
	Timeout time.Duration
}

// DefaultSweepLegacyKeysConfig returns sensible defaults.
func DefaultSweepLegacyKeysConfig() SweepLegacyKeysConfig {
	return SweepLegacyKeysConfig{
		Timeout: 10 * time.Minute,
	}
}

// SweepStats contains statistics from a sweep run.
type SweepStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Report      engagement.SweepReport
}

// NewSweepLegacyKeysJob creates a new legacy key sweep job.
func NewSweepLegacyKeysJob(
	migrator *engagement.Migrator,
	logger *slog.Logger,
	config SweepLegacyKeysConfig,
) *SweepLegacyKeysJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &SweepLegacyKeysJob{
		migrator: migrator,
		logger:   logger,
		config:   config,
	}
}

// Name returns the job name.
func (j *SweepLegacyKeysJob) Name() string {
	return "sweep_legacy_keys"
}

// Description returns a human-readable description.
func (j *SweepLegacyKeysJob) Description() string {
	return "Migrates records under legacy zero-padded user ids to canonical keys"
}

// Run executes the sweep job.
func (j *SweepLegacyKeysJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	report, err := j.migrator.Sweep(ctx)

	stats := &SweepStats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Report:      report,
	}
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	if err != nil {
		return fmt.Errorf("sweep legacy keys: %w", err)
	}

	j.logger.Info("sweep_legacy_keys job completed",
		"duration", stats.Duration.String(),
		"scanned", report.Scanned,
		"migrated", report.Migrated,
		"failed", report.Failed,
	)

	if report.Failed > 0 {
		return fmt.Errorf("sweep completed with %d failed keys", report.Failed)
	}

	return nil
}

// LastSweepStats returns statistics from the last sweep run.
func (j *SweepLegacyKeysJob) LastSweepStats() *SweepStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*SweepStats)
}
