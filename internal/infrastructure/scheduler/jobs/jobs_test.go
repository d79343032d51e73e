package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
)

func newTestEngine(t *testing.T) (*engagement.Engine, *kv.Memory) {
	t.Helper()

	store := kv.NewMemory()

	cfg := engagement.DefaultConfig()
	cfg.Store = store
	cfg.Executor = tasks.NewInline(logging.Discard())
	cfg.Logger = logging.Discard()
	cfg.EnableRankBonuses = false

	engine, err := engagement.New(cfg)
	require.NoError(t, err)
	return engine, store
}

func TestRefreshLeaderboardsJobCoversEveryType(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Journeys.Increment(ctx, journey.TypeArticle, "alice")
	require.NoError(t, err)
	_, err = engine.Journeys.Increment(ctx, journey.TypeArticle, "bob")
	require.NoError(t, err)

	job := NewRefreshLeaderboardsJob(engine.Leaderboard, logging.Discard(), DefaultRefreshLeaderboardsConfig())
	require.NoError(t, job.Run(ctx))

	stats := job.LastRefreshStats()
	require.NotNil(t, stats)
	assert.Equal(t, len(journey.Types()), stats.TypesProcessed)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Empty(t, stats.Errors)
}

func TestSweepLegacyKeysJobMigrates(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	err := store.Put(ctx, "user:impact_points:0042", []byte(`17`), kv.PutOptions{})
	require.NoError(t, err)

	job := NewSweepLegacyKeysJob(engine.Identity, logging.Discard(), DefaultSweepLegacyKeysConfig())
	require.NoError(t, job.Run(ctx))

	stats := job.LastSweepStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Report.Migrated)
	assert.Zero(t, stats.Report.Failed)

	value, err := store.Get(ctx, "user:impact_points:42")
	require.NoError(t, err)
	assert.Equal(t, []byte(`17`), value)

	_, err = store.Get(ctx, "user:impact_points:0042")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

// stubPurger wraps the memory store with a Purger implementation so the
// purge job's SQL-backend path is testable without a database.
type stubPurger struct {
	*kv.Memory
	purged int
}

func (s *stubPurger) PurgeExpired(ctx context.Context) (int, error) {
	return s.purged, nil
}

func TestPurgeExpiredJobSkipsNativeExpiryStores(t *testing.T) {
	job := NewPurgeExpiredJob(kv.NewMemory(), logging.Discard(), DefaultPurgeExpiredConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Nil(t, job.LastPurgeStats())
}

func TestPurgeExpiredJobReportsPurgedCount(t *testing.T) {
	store := &stubPurger{Memory: kv.NewMemory(), purged: 3}
	job := NewPurgeExpiredJob(store, logging.Discard(), DefaultPurgeExpiredConfig())

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastPurgeStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Purged)
}
