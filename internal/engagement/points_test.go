package engagement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

func TestPointsAddAccumulates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	balance, err := env.engine.Points.Add(ctx, "42", 10, "badge well_read")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	balance, err = env.engine.Points.Add(ctx, "42", 5, "badge responder")
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	balance, err = env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)
}

func TestPointsRemoveFloorsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Points.Add(ctx, "42", 5, "seed")
	require.NoError(t, err)

	// Debiting more than the balance never goes negative.
	balance, err := env.engine.Points.Remove(ctx, "42", 8, "correction")
	require.NoError(t, err)
	assert.Zero(t, balance)

	balance, err = env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestPointsRejectNegativeAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Points.Add(ctx, "42", -1, "oops")
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	_, err = env.engine.Points.Remove(ctx, "42", -1, "oops")
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	_, err = env.engine.Points.Set(ctx, "42", -1, "oops")
	assert.ErrorIs(t, err, shared.ErrNegativeBalance)
}

func TestPointsSetOverwrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Points.Add(ctx, "42", 7, "seed")
	require.NoError(t, err)

	balance, err := env.engine.Points.Set(ctx, "42", 100, "support adjustment")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestPointsAbsentUserReadsZero(t *testing.T) {
	env := newTestEnv(t)

	balance, err := env.engine.Points.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestPointsMalformedBalanceReadsZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Put(ctx, pointsKey("42"), []byte("not-a-number"), kv.PutOptions{}))

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestPointsNormalizeLegacyIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A credit through the padded id lands on the canonical balance.
	_, err := env.engine.Points.Add(ctx, "00000042", 5, "seed")
	require.NoError(t, err)

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestPointsRequireUserID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Points.Get(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrEmptyIdentifier)
}

func TestPointsSurfaceWriteFailures(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Store = &failingStore{Store: cfg.Store, prefix: pointsKeyPrefix}
	})

	_, err := env.engine.Points.Add(context.Background(), "42", 5, "seed")
	assert.ErrorIs(t, err, shared.ErrExternalService)
}
