package badge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRarityOrderAndRewards(t *testing.T) {
	assert.True(t, RarityNormal < RarityRare)
	assert.True(t, RarityRare < RarityAmazing)
	assert.True(t, RarityAmazing < RarityGreen)

	assert.Equal(t, int64(10), RarityNormal.PointReward())
	assert.Equal(t, int64(25), RarityRare.PointReward())
	assert.Equal(t, int64(50), RarityAmazing.PointReward())
	assert.Equal(t, int64(100), RarityGreen.PointReward())
}

func TestRegistryIsWellFormed(t *testing.T) {
	defs := Registry()
	require.NotEmpty(t, defs)

	seen := make(map[string]bool)
	for _, b := range defs {
		assert.NotEmpty(t, b.ID)
		assert.NotEmpty(t, b.Name)
		assert.True(t, b.Rarity.IsValid(), "badge %s", b.ID)
		assert.False(t, seen[b.ID], "duplicate badge id %s", b.ID)
		seen[b.ID] = true
	}
}

func TestFind(t *testing.T) {
	b, ok := Find("well_read")
	require.True(t, ok)
	assert.Equal(t, TrackerArticlesRead, b.TrackerID)

	_, ok = Find("no_such_badge")
	assert.False(t, ok)
}

func TestBoundTo(t *testing.T) {
	bound := BoundTo(TrackerArticlesRead)
	require.Len(t, bound, 2)

	ids := []string{bound[0].ID, bound[1].ID}
	assert.Contains(t, ids, "well_read")
	assert.Contains(t, ids, "bookworm")

	assert.Empty(t, BoundTo(""))
	assert.Empty(t, BoundTo("unbound_tracker"))
}

func TestCappedRamp(t *testing.T) {
	s := Strategy{Kind: StrategyCappedRamp, Cap: 10}

	assert.Equal(t, 0.0, s.Evaluate(Input{}, Context{}))
	assert.Equal(t, 0.5, s.Evaluate(Input{Sum: 5}, Context{}))
	assert.Equal(t, 1.0, s.Evaluate(Input{Sum: 10}, Context{}))
	assert.Equal(t, 1.0, s.Evaluate(Input{Sum: 250}, Context{}))
	assert.Equal(t, 0.0, s.Evaluate(Input{Sum: -3}, Context{}))

	// String-set trackers ramp on unique-token count.
	assert.Equal(t, 0.5, s.Evaluate(Input{Tokens: []string{"a1", "a2", "a3", "a4", "a5"}}, Context{}))
	assert.Equal(t, 0.1, s.Evaluate(Input{Tokens: []string{"a1"}}, Context{}))

	degenerate := Strategy{Kind: StrategyCappedRamp}
	assert.Equal(t, 0.0, degenerate.Evaluate(Input{Sum: 5}, Context{}))
}

func TestSetCombination(t *testing.T) {
	s := Strategy{Kind: StrategySetCombination, Required: []string{"article", "event"}}

	assert.Equal(t, 0.0, s.Evaluate(Input{}, Context{}))
	assert.Equal(t, 0.5, s.Evaluate(Input{Tokens: []string{"article"}}, Context{}))
	assert.Equal(t, 0.5, s.Evaluate(Input{Tokens: []string{"event", "podcast"}}, Context{}))
	assert.Equal(t, 1.0, s.Evaluate(Input{Tokens: []string{"event", "article"}}, Context{}))
}

func TestTimeRamp(t *testing.T) {
	s := Strategy{Kind: StrategyTimeRamp, Days: 100}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, s.Evaluate(Input{}, Context{Now: now}))
	assert.Equal(t, 0.5, s.Evaluate(Input{}, Context{Now: now, Since: now.AddDate(0, 0, -50)}))
	assert.Equal(t, 1.0, s.Evaluate(Input{}, Context{Now: now, Since: now.AddDate(0, 0, -100)}))
	assert.Equal(t, 1.0, s.Evaluate(Input{}, Context{Now: now, Since: now.AddDate(-3, 0, 0)}))
	// A date in the future never yields negative progress.
	assert.Equal(t, 0.0, s.Evaluate(Input{}, Context{Now: now, Since: now.AddDate(0, 0, 7)}))
}

func TestConstant(t *testing.T) {
	assert.Equal(t, 0.0, Strategy{Kind: StrategyConstant, Value: 0}.Evaluate(Input{}, Context{}))
	assert.Equal(t, 0.25, Strategy{Kind: StrategyConstant, Value: 0.25}.Evaluate(Input{}, Context{}))
	assert.Equal(t, 1.0, Strategy{Kind: StrategyConstant, Value: 7}.Evaluate(Input{}, Context{}))
}

func TestEvaluateAlwaysInUnitInterval(t *testing.T) {
	strategies := []Strategy{
		{Kind: StrategyCappedRamp, Cap: 10},
		{Kind: StrategySetCombination, Required: []string{"a", "b"}},
		{Kind: StrategyTimeRamp, Days: 30},
		{Kind: StrategyConstant, Value: -2},
		{Kind: StrategyConstant, Value: 99},
	}
	inputs := []Input{
		{},
		{Sum: -1000},
		{Sum: 1e12},
		{Tokens: []string{"a", "b", "c", "a"}},
	}
	now := time.Now()

	for _, s := range strategies {
		for _, in := range inputs {
			got := s.Evaluate(in, Context{Now: now, Since: now.AddDate(0, -1, 0)})
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}
