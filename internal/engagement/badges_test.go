package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/notify"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

func TestGrantCreditsRarityRewardOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	newly, err := env.engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)
	assert.True(t, newly)

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// Re-granting neither errors nor re-credits.
	newly, err = env.engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)
	assert.False(t, newly)

	balance, err = env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestGrantUnknownBadge(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Badges.Grant(context.Background(), "42", "no_such_badge")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)
}

func TestGrantFeedsEarnedPointsTracker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// staff_pick is worth 100, exactly the impact_100 threshold.
	_, err := env.engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)

	progress, err := env.engine.Badges.Progress(ctx, "42", "impact_100", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, progress)
}

func TestPointsEarnedBadgeDoesNotFeedItself(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// impact_100 is bound to the points_earned tracker; its own reward must
	// not advance that tracker, or the grant would re-qualify the family.
	newly, err := env.engine.Badges.Grant(ctx, "42", "impact_100")
	require.NoError(t, err)
	require.True(t, newly)

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	progress, err := env.engine.Badges.Progress(ctx, "42", "impact_100", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, progress)
}

func TestCheckAndGrantAwardsFamilyExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(100)})
	require.NoError(t, err)

	earned, err := env.engine.Badges.CheckAndGrant(ctx, "42", "articles_read", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"well_read", "bookworm"}, earned)

	// 10 for the normal badge plus 25 for the rare one.
	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(35), balance)

	// One notification covers the whole batch.
	sent := env.sent.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindBadgeEarned, sent[0].Kind)
	assert.Contains(t, sent[0].Body, "Well Read")
	assert.Contains(t, sent[0].Body, "Bookworm")

	// Running the check again grants nothing new.
	earned, err = env.engine.Badges.CheckAndGrant(ctx, "42", "articles_read", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, earned)
	assert.Len(t, env.sent.notifications(), 1)
}

func TestCheckAndGrantToleratesPerBadgeFailures(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Store = &failingStore{Store: cfg.Store, prefix: badgeGrantKeyPrefix}
	})
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(10)})
	require.NoError(t, err)

	// Grant writes are refused: the check logs, skips, and stays quiet.
	earned, err := env.engine.Badges.CheckAndGrant(ctx, "42", "articles_read", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, earned)
	assert.Empty(t, env.sent.notifications())
}

func TestRevokeKeepsCreditedPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)

	require.NoError(t, env.engine.Badges.Revoke(ctx, "42", "staff_pick"))

	held, err := env.engine.Badges.Badges(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, held)

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	err = env.engine.Badges.Revoke(ctx, "42", "no_such_badge")
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)
}

func TestResetProgressMakesBadgeEarnableAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earned, err := env.engine.Track(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(10)}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"well_read"}, earned)

	require.NoError(t, env.engine.Badges.ResetProgress(ctx, "42", "well_read"))

	progress, err := env.engine.Badges.Progress(ctx, "42", "well_read", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, progress)

	held, err := env.engine.Badges.Badges(ctx, "42")
	require.NoError(t, err)
	assert.NotContains(t, held, "well_read")

	earned, err = env.engine.Track(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(10)}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"well_read"}, earned)
}

func TestBadgesListIncludesLegacyGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)
	// A grant still sitting under the zero-padded id is not lost.
	err = env.store.Put(ctx, badgeGrantKey("00000042", "early_adopter"), []byte(`{"grantedAt":1}`), kv.PutOptions{})
	require.NoError(t, err)

	held, err := env.engine.Badges.Badges(ctx, "00000042")
	require.NoError(t, err)
	assert.Equal(t, []string{"early_adopter", "staff_pick"}, held)
}

func TestNotificationsCanBeDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.EnableNotifications = false
	})
	ctx := context.Background()

	earned, err := env.engine.Track(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(10)}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, []string{"well_read"}, earned)
	assert.Empty(t, env.sent.notifications())
}
