package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*engagement.Engine, *kv.Memory, *timeutil.FixedClock) {
	t.Helper()

	clock := timeutil.NewFixedClock(baseTime)
	store := kv.NewMemory(kv.WithClock(clock))

	cfg := engagement.DefaultConfig()
	cfg.Store = store
	cfg.Executor = tasks.NewInline(logging.Discard())
	cfg.Clock = clock
	cfg.Logger = logging.Discard()
	cfg.EnableRankBonuses = false

	engine, err := engagement.New(cfg)
	require.NoError(t, err)
	return engine, store, clock
}

// seedStreak writes a journey record directly, the shape Increment leaves
// behind.
func seedStreak(t *testing.T, store *kv.Memory, clock *timeutil.FixedClock, jt, userID string, streak int) {
	t.Helper()

	payload, err := json.Marshal(journey.State{
		Streak:    streak,
		LastWrite: timeutil.UnixMilli(clock.Now()),
	})
	require.NoError(t, err)

	key := "journey:" + jt + ":" + userID
	err = store.Put(context.Background(), key, payload, kv.PutOptions{
		TTL:      journey.DefaultTTL,
		Metadata: json.RawMessage(payload),
	})
	require.NoError(t, err)
}

func TestGetLeaderboardOrdersByStreak(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	handler := NewGetLeaderboardHandler(engine.Leaderboard)

	seedStreak(t, store, clock, "article", "alice", 50)
	seedStreak(t, store, clock, "article", "bob", 30)
	seedStreak(t, store, clock, "article", "carol", 41)

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{JourneyType: "article"})
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, "article", result.JourneyType)
	assert.Equal(t, LeaderboardEntryDTO{Rank: 1, UserID: "alice", Streak: 50}, result.Entries[0])
	assert.Equal(t, LeaderboardEntryDTO{Rank: 2, UserID: "carol", Streak: 41}, result.Entries[1])
	assert.Equal(t, LeaderboardEntryDTO{Rank: 3, UserID: "bob", Streak: 30}, result.Entries[2])
}

func TestGetLeaderboardHonorsLimit(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	handler := NewGetLeaderboardHandler(engine.Leaderboard)

	seedStreak(t, store, clock, "article", "alice", 50)
	seedStreak(t, store, clock, "article", "bob", 30)

	result, err := handler.Handle(context.Background(), GetLeaderboardQuery{
		JourneyType: "article",
		Limit:       1,
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "alice", result.Entries[0].UserID)
}

func TestGetLeaderboardRejectsUnknownType(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	handler := NewGetLeaderboardHandler(engine.Leaderboard)

	_, err := handler.Handle(context.Background(), GetLeaderboardQuery{JourneyType: "bogus"})
	assert.ErrorIs(t, err, shared.ErrUnknownJourneyType)
}

func TestGetRankReportsPosition(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	handler := NewGetRankHandler(engine.Leaderboard)
	ctx := context.Background()

	seedStreak(t, store, clock, "article", "alice", 50)
	seedStreak(t, store, clock, "article", "bob", 30)

	result, err := handler.Handle(ctx, GetRankQuery{JourneyType: "article", UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rank)
	assert.True(t, result.Ranked)

	result, err = handler.Handle(ctx, GetRankQuery{JourneyType: "article", UserID: "nobody"})
	require.NoError(t, err)
	assert.Zero(t, result.Rank)
	assert.False(t, result.Ranked)
}

func TestGetEngagementProfileAssemblesAllSections(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	handler := NewGetEngagementProfileHandler(engine)
	ctx := context.Background()

	// staff_pick credits 100; the article increment credits the flat award.
	_, err := engine.Badges.Grant(ctx, "42", "staff_pick")
	require.NoError(t, err)
	err = engine.Trackers.AddProgress(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(5)})
	require.NoError(t, err)
	_, err = engine.Journeys.Increment(ctx, journey.TypeArticle, "42")
	require.NoError(t, err)

	result, err := handler.Handle(ctx, GetEngagementProfileQuery{UserID: "42"})
	require.NoError(t, err)

	assert.Equal(t, "42", result.UserID)
	assert.Equal(t, int64(101), result.Points)

	statuses := make(map[string]BadgeStatusDTO, len(result.Badges))
	for _, b := range result.Badges {
		statuses[b.BadgeID] = b
	}
	assert.True(t, statuses["staff_pick"].Granted)
	assert.Equal(t, float64(1), statuses["staff_pick"].Progress)
	assert.False(t, statuses["well_read"].Granted)
	assert.InDelta(t, 0.5, statuses["well_read"].Progress, 1e-9)

	streaks := make(map[string]int, len(result.Journeys))
	for _, j := range result.Journeys {
		streaks[j.Type] = j.Streak
	}
	assert.Equal(t, 1, streaks["article"])
	assert.Zero(t, streaks["activity"])
	assert.Zero(t, streaks["event"])
}

func TestGetEngagementProfileRequiresUserID(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	handler := NewGetEngagementProfileHandler(engine)

	_, err := handler.Handle(context.Background(), GetEngagementProfileQuery{})
	assert.ErrorIs(t, err, shared.ErrEmptyIdentifier)
}
