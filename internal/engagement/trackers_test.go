package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/badge"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
)

func TestAddProgressSumsNumericValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(3)})
	require.NoError(t, err)
	err = env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{
		tracker.NumberValue(4),
		tracker.NumberValue(5),
	})
	require.NoError(t, err)

	entries, err := env.engine.Trackers.Snapshot(ctx, "42", "articles_read")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, float64(12), entries.Sum())
	assert.Equal(t, tracker.KindNumber, entries.DominantKind())
}

func TestAddProgressUnionsStringTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "42", "content_formats", []tracker.Value{tracker.StringValue("article")})
	require.NoError(t, err)
	err = env.engine.Trackers.AddProgress(ctx, "42", "content_formats", []tracker.Value{
		tracker.StringValue("article"),
		tracker.StringValue("event"),
	})
	require.NoError(t, err)

	entries, err := env.engine.Trackers.Snapshot(ctx, "42", "content_formats")
	require.NoError(t, err)
	assert.Equal(t, []string{"article", "event"}, entries.Tokens())
}

func TestAddProgressNormalizesIDLikeTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{
		tracker.StringValue("0007"),
		tracker.StringValue("7"),
		tracker.StringValue("essay"),
	})
	require.NoError(t, err)

	entries, err := env.engine.Trackers.Snapshot(ctx, "42", "articles_read")
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "essay"}, entries.Tokens())
}

func TestAddProgressRejectsMixedValueKinds(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.Trackers.AddProgress(context.Background(), "42", "articles_read", []tracker.Value{
		tracker.NumberValue(1),
		tracker.StringValue("article"),
	})
	assert.ErrorIs(t, err, shared.ErrMixedValueKinds)
}

func TestAddProgressDropsKindConflictSilently(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(3)}))

	// The stored tracker is numeric, so a string update is dropped but the
	// caller still sees success.
	err := env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.StringValue("article")})
	require.NoError(t, err)

	entries, err := env.engine.Trackers.Snapshot(ctx, "42", "articles_read")
	require.NoError(t, err)
	assert.Equal(t, float64(3), entries.Sum())
	assert.Empty(t, entries.Tokens())
}

func TestAddProgressEmptyBatchIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.Trackers.AddProgress(context.Background(), "42", "articles_read", nil)
	require.NoError(t, err)
	assert.Zero(t, env.store.Len())
}

func TestAddProgressValidatesArguments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.engine.Trackers.AddProgress(ctx, "", "articles_read", []tracker.Value{tracker.NumberValue(1)})
	assert.ErrorIs(t, err, shared.ErrEmptyIdentifier)

	err = env.engine.Trackers.AddProgress(ctx, "42", "", []tracker.Value{tracker.NumberValue(1)})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestSnapshotFlattensStoredArrayPayloads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Records from the old system stored whole batches as array values.
	raw := `[{"t":1000,"v":[3,4]},{"t":2000,"v":5}]`
	require.NoError(t, env.store.Put(ctx, trackerKey("123", "articles_read"), []byte(raw), kv.PutOptions{}))

	entries, err := env.engine.Trackers.Snapshot(ctx, "123", "articles_read")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, float64(12), entries.Sum())

	// The next write persists the flattened form.
	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "123", "articles_read", []tracker.Value{tracker.NumberValue(1)}))

	stored, err := env.store.Get(ctx, trackerKey("123", "articles_read"))
	require.NoError(t, err)
	decoded, err := tracker.Decode(stored)
	require.NoError(t, err)
	assert.Len(t, decoded, 1)
	assert.Equal(t, float64(13), decoded.Sum())
}

func TestSnapshotReadsLegacyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	raw := `[{"t":1000,"v":7}]`
	require.NoError(t, env.store.Put(ctx, trackerKey("00000123", "articles_read"), []byte(raw), kv.PutOptions{}))

	entries, err := env.engine.Trackers.Snapshot(ctx, "00000123", "articles_read")
	require.NoError(t, err)
	assert.Equal(t, float64(7), entries.Sum())

	// The fallback read moved the record to its canonical key.
	_, err = env.store.Get(ctx, trackerKey("123", "articles_read"))
	assert.NoError(t, err)
	_, err = env.store.Get(ctx, trackerKey("00000123", "articles_read"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSnapshotTreatsCorruptPayloadAsEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Put(ctx, trackerKey("42", "articles_read"), []byte("{not json"), kv.PutOptions{}))

	entries, err := env.engine.Trackers.Snapshot(ctx, "42", "articles_read")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteClearsCanonicalAndLegacyKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Put(ctx, trackerKey("123", "articles_read"), []byte(`[{"t":1,"v":5}]`), kv.PutOptions{}))
	require.NoError(t, env.store.Put(ctx, trackerKey("00000123", "articles_read"), []byte(`[{"t":1,"v":9}]`), kv.PutOptions{}))

	require.NoError(t, env.engine.Trackers.Delete(ctx, "00000123", "articles_read"))

	entries, err := env.engine.Trackers.Snapshot(ctx, "00000123", "articles_read")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, env.store.Len())
}

func TestGetProgressRampsTowardCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(5)}))

	wellRead, ok := badge.Find("well_read")
	require.True(t, ok)

	progress, err := env.engine.Trackers.GetProgress(ctx, "42", wellRead, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, progress, 1e-9)

	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(50)}))

	progress, err = env.engine.Trackers.GetProgress(ctx, "42", wellRead, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), progress)
}

func TestGetProgressCountsUniqueTokensTowardCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wellRead, ok := badge.Find("well_read")
	require.True(t, ok)

	// Reading the same article twice counts once.
	ids := []tracker.Value{
		tracker.StringValue("1001"),
		tracker.StringValue("1002"),
		tracker.StringValue("1003"),
		tracker.StringValue("1004"),
		tracker.StringValue("1005"),
		tracker.StringValue("1001"),
	}
	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "articles_read", ids))

	progress, err := env.engine.Trackers.GetProgress(ctx, "42", wellRead, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, progress, 1e-9)
}

func TestGetProgressScoresTokenSets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	explorer, ok := badge.Find("format_explorer")
	require.True(t, ok)

	progress, err := env.engine.Trackers.GetProgress(ctx, "42", explorer, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, progress)

	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "content_formats", []tracker.Value{tracker.StringValue("article")}))
	progress, err = env.engine.Trackers.GetProgress(ctx, "42", explorer, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, progress, 1e-9)

	require.NoError(t, env.engine.Trackers.AddProgress(ctx, "42", "content_formats", []tracker.Value{tracker.StringValue("event")}))
	progress, err = env.engine.Trackers.GetProgress(ctx, "42", explorer, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), progress)
}

func TestGetProgressRampsOverTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	anniversary, ok := badge.Find("anniversary")
	require.True(t, ok)

	progress, err := env.engine.Trackers.GetProgress(ctx, "42", anniversary, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, progress)

	progress, err = env.engine.Trackers.GetProgress(ctx, "42", anniversary, baseTime.Add(-73*24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, progress, 1e-9)

	progress, err = env.engine.Trackers.GetProgress(ctx, "42", anniversary, baseTime.Add(-400*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, float64(1), progress)
}

func TestGetProgressBinaryForExplicitBadges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staffPick, ok := badge.Find("staff_pick")
	require.True(t, ok)

	progress, err := env.engine.Trackers.GetProgress(ctx, "42", staffPick, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, progress)

	require.NoError(t, env.engine.Grants.Grant(ctx, "42", "staff_pick"))

	progress, err = env.engine.Trackers.GetProgress(ctx, "42", staffPick, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), progress)
}
