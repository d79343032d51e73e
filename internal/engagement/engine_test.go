package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/notify"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// notifyRecorder captures notifications instead of sending them.
type notifyRecorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *notifyRecorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *notifyRecorder) notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// failingStore refuses writes under one key prefix and delegates the rest.
type failingStore struct {
	kv.Store
	prefix string
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte, opts kv.PutOptions) error {
	if strings.HasPrefix(key, f.prefix) {
		return errors.New("write refused")
	}
	return f.Store.Put(ctx, key, value, opts)
}

type testEnv struct {
	engine *Engine
	store  *kv.Memory
	clock  *timeutil.FixedClock
	sent   *notifyRecorder
}

// newTestEnv wires an engine over an in-memory store with a fixed clock and
// a synchronous executor, so background awards land before calls return.
func newTestEnv(t *testing.T, overrides ...func(*Config)) *testEnv {
	t.Helper()

	clock := timeutil.NewFixedClock(baseTime)
	store := kv.NewMemory(kv.WithClock(clock))
	rec := &notifyRecorder{}

	cfg := DefaultConfig()
	cfg.Store = store
	cfg.Executor = tasks.NewInline(logging.Discard())
	cfg.Notifier = rec
	cfg.Clock = clock
	cfg.Logger = logging.Discard()
	for _, o := range overrides {
		o(&cfg)
	}

	engine, err := New(cfg)
	require.NoError(t, err)

	return &testEnv{engine: engine, store: store, clock: clock, sent: rec}
}

func disableRankBonuses(cfg *Config) {
	cfg.EnableRankBonuses = false
}

// seedJourney writes a journey record the way Increment would, metadata
// mirror included.
func seedJourney(t *testing.T, env *testEnv, jt journey.Type, userID string, streak int) {
	t.Helper()

	payload, err := json.Marshal(journey.State{
		Streak:    streak,
		LastWrite: timeutil.UnixMilli(env.clock.Now()),
	})
	require.NoError(t, err)

	err = env.store.Put(context.Background(), journeyKey(jt, userID), payload, kv.PutOptions{
		TTL:      journey.DefaultTTL,
		Metadata: json.RawMessage(payload),
	})
	require.NoError(t, err)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewDefaultsOptionalDependencies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = kv.NewMemory()
	cfg.Logger = logging.Discard()

	engine, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, engine.Identity)
	assert.NotNil(t, engine.Trackers)
	assert.NotNil(t, engine.Points)
	assert.NotNil(t, engine.Journeys)
	assert.NotNil(t, engine.Leaderboard)
	assert.NotNil(t, engine.Badges)
}

func TestTrackRecordsProgressAndGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earned, err := env.engine.Track(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(10)}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"well_read"}, earned)

	balance, err := env.engine.Points.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	sent := env.sent.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].UserID)
	assert.Equal(t, notify.KindBadgeEarned, sent[0].Kind)

	// The next article neither re-grants nor re-notifies.
	earned, err = env.engine.Track(ctx, "42", "articles_read", []tracker.Value{tracker.NumberValue(1)}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, earned)
	assert.Len(t, env.sent.notifications(), 1)
}

func TestTrackPropagatesValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Track(context.Background(), "", "articles_read", []tracker.Value{tracker.NumberValue(1)}, time.Time{})
	assert.Error(t, err)
}
