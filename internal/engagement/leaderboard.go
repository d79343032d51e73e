package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/identity"
	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/leaderboard"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// LeaderboardIndex serves the top streaks per journey type from a cached
// snapshot. The snapshot is rebuilt on demand by scanning every journey of
// the type, then cached with a short TTL; between rebuilds reads are served
// stale. Rank answers conservatively: a user missing from a stale snapshot
// is reported unranked rather than guessed.
type LeaderboardIndex struct {
	store    kv.Store
	clock    timeutil.Clock
	logger   *slog.Logger
	migrator *Migrator
	size     int
	ttl      time.Duration
	pageSize int
}

// LeaderboardIndexConfig contains configuration for LeaderboardIndex.
// Start from DefaultLeaderboardIndexConfig and override what differs.
type LeaderboardIndexConfig struct {
	Store kv.Store
	Clock timeutil.Clock

	// Migrator, when set, moves legacy records surfaced by fallback reads
	// to their canonical keys.
	Migrator *Migrator

	// Logger for structured logging.
	Logger *slog.Logger

	// Size is how many entries a snapshot keeps.
	Size int

	// TTL is how long a cached snapshot is served before a rebuild.
	TTL time.Duration

	// PageSize is the listing page size used during rebuilds.
	PageSize int
}

// DefaultLeaderboardIndexConfig returns sensible defaults.
func DefaultLeaderboardIndexConfig() LeaderboardIndexConfig {
	return LeaderboardIndexConfig{
		Size:     10,
		TTL:      5 * time.Minute,
		PageSize: kv.DefaultListLimit,
	}
}

// NewLeaderboardIndex creates a new leaderboard index.
func NewLeaderboardIndex(config LeaderboardIndexConfig) *LeaderboardIndex {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Size <= 0 {
		config.Size = 10
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.PageSize <= 0 {
		config.PageSize = kv.DefaultListLimit
	}

	return &LeaderboardIndex{
		store:    config.Store,
		clock:    clock,
		logger:   logger.With(logging.Component("leaderboard")),
		migrator: config.Migrator,
		size:     config.Size,
		ttl:      config.TTL,
		pageSize: config.PageSize,
	}
}

// Top returns up to limit leaderboard entries for the journey type, best
// streak first. Limits outside (0, Size] are clamped to Size.
func (l *LeaderboardIndex) Top(ctx context.Context, t journey.Type, limit int) ([]leaderboard.Entry, error) {
	if !t.IsValid() {
		return nil, shared.ErrUnknownJourneyType
	}
	if limit <= 0 || limit > l.size {
		limit = l.size
	}

	snap, err := l.snapshot(ctx, t)
	if err != nil {
		return nil, err
	}
	return snap.Truncate(limit), nil
}

// Rank returns the user's position on the leaderboard, or zero when the
// user is unranked. A user whose streak would qualify but who is missing
// from a stale full snapshot is reported unranked until the next rebuild.
func (l *LeaderboardIndex) Rank(ctx context.Context, t journey.Type, userID string) (leaderboard.Rank, error) {
	if !t.IsValid() {
		return 0, shared.ErrUnknownJourneyType
	}
	user, err := canonicalUser(userID)
	if err != nil {
		return 0, err
	}

	state, err := loadJourneyState(ctx, l.store, l.logger, l.migrator, t, user, userID)
	if err != nil {
		return 0, err
	}
	if state.Streak <= 0 {
		return 0, nil
	}

	snap, err := l.snapshot(ctx, t)
	if err != nil {
		return 0, err
	}

	if rank, ok := snap.Position(user); ok {
		return rank, nil
	}

	if snap.Full(l.size) {
		if low, ok := snap.Lowest(); ok && state.Streak >= low.Streak {
			l.logger.Debug("rank withheld on stale snapshot",
				logging.JourneyType(t.String()),
				logging.UserID(user),
				logging.Streak(state.Streak),
			)
		}
	}

	return 0, nil
}

// Refresh rebuilds and caches the snapshot for one journey type,
// regardless of what is cached. The scheduler uses it to keep snapshots
// warm so request-path reads rarely pay for a scan.
func (l *LeaderboardIndex) Refresh(ctx context.Context, t journey.Type) (leaderboard.Snapshot, error) {
	if !t.IsValid() {
		return leaderboard.Snapshot{}, shared.ErrUnknownJourneyType
	}
	return l.rebuild(ctx, t)
}

// snapshot returns the cached snapshot, rebuilding on a miss or a corrupt
// cache entry.
func (l *LeaderboardIndex) snapshot(ctx context.Context, t journey.Type) (leaderboard.Snapshot, error) {
	raw, err := l.store.Get(ctx, leaderboardKey(t))
	if err == nil {
		var snap leaderboard.Snapshot
		if jerr := json.Unmarshal(raw, &snap); jerr == nil {
			return snap, nil
		}
		l.logger.Warn("corrupt leaderboard snapshot, rebuilding",
			logging.JourneyType(t.String()),
		)
	} else if !errors.Is(err, kv.ErrNotFound) {
		return leaderboard.Snapshot{}, shared.WrapError("leaderboard", "Get", shared.ErrExternalService, "read snapshot", err)
	}

	return l.rebuild(ctx, t)
}

// rebuild scans every journey of the type and caches the top entries.
// Users never escape the scan: records may appear under both a legacy and
// a canonical key until the sweep converges, so streaks are deduplicated
// per canonical user keeping the best value.
func (l *LeaderboardIndex) rebuild(ctx context.Context, t journey.Type) (leaderboard.Snapshot, error) {
	prefix := journeyTypePrefix(t)
	best := make(map[string]int)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return leaderboard.Snapshot{}, err
		}

		page, err := l.store.List(ctx, kv.ListOptions{
			Prefix: prefix,
			Cursor: cursor,
			Limit:  l.pageSize,
		})
		if err != nil {
			return leaderboard.Snapshot{}, shared.WrapError("leaderboard", "Build", shared.ErrServiceUnavailable, "scan journeys", err)
		}

		for _, k := range page.Keys {
			user := identity.Normalize(strings.TrimPrefix(k.Name, prefix))
			if user == "" {
				continue
			}

			state, ok := l.stateFromListing(ctx, k)
			if !ok || state.Streak <= 0 {
				continue
			}
			if state.Streak > best[user] {
				best[user] = state.Streak
			}
		}

		if page.Complete {
			break
		}
		cursor = page.Cursor
	}

	candidates := make([]leaderboard.Entry, 0, len(best))
	for user, streak := range best {
		candidates = append(candidates, leaderboard.Entry{UserID: user, Streak: streak})
	}

	snap := leaderboard.Build(candidates, l.size, timeutil.UnixMilli(l.clock.Now()))

	payload, err := json.Marshal(snap)
	if err == nil {
		if perr := l.store.Put(ctx, leaderboardKey(t), payload, kv.PutOptions{TTL: l.ttl}); perr != nil {
			l.logger.Warn("failed to cache leaderboard snapshot",
				logging.JourneyType(t.String()),
				logging.Err(perr),
			)
		}
	}

	l.logger.Debug("leaderboard snapshot rebuilt",
		logging.JourneyType(t.String()),
		slog.Int("entries", len(snap.Entries)),
	)

	return snap, nil
}

// stateFromListing decodes a journey state from listing metadata, falling
// back to a point read for records written before metadata mirroring.
func (l *LeaderboardIndex) stateFromListing(ctx context.Context, k kv.KeyInfo) (journey.State, bool) {
	var state journey.State
	if len(k.Metadata) > 0 && json.Unmarshal(k.Metadata, &state) == nil && state.LastWrite != 0 {
		return state, true
	}

	raw, err := l.store.Get(ctx, k.Name)
	if err != nil {
		// Expired or deleted between the listing and the read.
		return journey.State{}, false
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return journey.State{}, false
	}
	return state, true
}
