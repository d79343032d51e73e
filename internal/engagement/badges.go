package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/badge"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/notify"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

const taskKindBadgeNotify = "notify.badge_earned"

// Grants persists which badges a user holds. A grant is a single key whose
// presence is the fact; grantedAt rides along as value and metadata.
type Grants struct {
	store    kv.Store
	clock    timeutil.Clock
	logger   *slog.Logger
	migrator *Migrator
}

// GrantsConfig contains configuration for Grants.
type GrantsConfig struct {
	Store kv.Store
	Clock timeutil.Clock

	// Migrator, when set, moves legacy records surfaced by fallback reads
	// to their canonical keys.
	Migrator *Migrator

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewGrants creates a new grant repository.
func NewGrants(config GrantsConfig) *Grants {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Grants{
		store:    config.Store,
		clock:    clock,
		logger:   logger.With(logging.Component("grants")),
		migrator: config.Migrator,
	}
}

type grantRecord struct {
	GrantedAt int64 `json:"grantedAt"`
}

// Granted reports whether the user holds the badge.
func (g *Grants) Granted(ctx context.Context, userID, badgeID string) (bool, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return false, err
	}

	legacyKey := ""
	if userID != user {
		legacyKey = badgeGrantKey(userID, badgeID)
	}

	_, err = readWithLegacyFallback(ctx, g.store, g.logger, badgeGrantKey(user, badgeID), legacyKey, g.migrator)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, shared.WrapError("badge", "FindGrant", shared.ErrExternalService, "read grant", err)
	}
	return true, nil
}

// Grant records the user as holding the badge. Re-granting overwrites the
// record with a fresh timestamp.
func (g *Grants) Grant(ctx context.Context, userID, badgeID string) error {
	user, err := canonicalUser(userID)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(grantRecord{GrantedAt: timeutil.UnixMilli(g.clock.Now())})
	opts := kv.PutOptions{Metadata: json.RawMessage(payload)}

	if err := g.store.Put(ctx, badgeGrantKey(user, badgeID), payload, opts); err != nil {
		return shared.WrapError("badge", "Grant", shared.ErrExternalService, "write grant", err)
	}
	return nil
}

// Revoke removes the user's grant, clearing both the canonical key and any
// legacy-id key so the fallback read cannot resurrect it. Revoking an
// absent grant is a no-op.
func (g *Grants) Revoke(ctx context.Context, userID, badgeID string) error {
	user, err := canonicalUser(userID)
	if err != nil {
		return err
	}

	if err := g.store.Delete(ctx, badgeGrantKey(user, badgeID)); err != nil {
		return shared.WrapError("badge", "Revoke", shared.ErrExternalService, "delete grant", err)
	}
	if userID != user {
		if err := g.store.Delete(ctx, badgeGrantKey(userID, badgeID)); err != nil {
			return shared.WrapError("badge", "Revoke", shared.ErrExternalService, "delete legacy grant", err)
		}
	}
	return nil
}

// List returns the ids of every badge the user holds, sorted. Grants still
// sitting under a legacy key are included.
func (g *Grants) List(ctx context.Context, userID string) ([]string, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	if err := g.collect(ctx, badgeGrantUserPrefix(user), ids); err != nil {
		return nil, err
	}
	if userID != user {
		if err := g.collect(ctx, badgeGrantUserPrefix(userID), ids); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (g *Grants) collect(ctx context.Context, prefix string, ids map[string]struct{}) error {
	cursor := ""
	for {
		page, err := g.store.List(ctx, kv.ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return shared.WrapError("badge", "List", shared.ErrExternalService, "list grants", err)
		}
		for _, k := range page.Keys {
			if id := strings.TrimPrefix(k.Name, prefix); id != "" {
				ids[id] = struct{}{}
			}
		}
		if page.Complete {
			return nil
		}
		cursor = page.Cursor
	}
}

// BadgeEngine grants and revokes badges against the static registry.
// Granting is idempotent and reward crediting is best-effort: once the
// grant record is written the badge is held, whatever happens to the
// points credit afterwards.
type BadgeEngine struct {
	grants        *Grants
	trackers      *TrackerStore
	ledger        *PointsLedger
	notifier      notify.Notifier
	executor      tasks.Executor
	clock         timeutil.Clock
	logger        *slog.Logger
	notifications bool
}

// BadgeEngineConfig contains configuration for BadgeEngine.
// Start from DefaultBadgeEngineConfig and override what differs.
type BadgeEngineConfig struct {
	Grants   *Grants
	Trackers *TrackerStore
	Ledger   *PointsLedger
	Notifier notify.Notifier
	Executor tasks.Executor
	Clock    timeutil.Clock

	// Logger for structured logging.
	Logger *slog.Logger

	// EnableNotifications schedules a notification when CheckAndGrant
	// awards badges.
	EnableNotifications bool
}

// DefaultBadgeEngineConfig returns sensible defaults.
func DefaultBadgeEngineConfig() BadgeEngineConfig {
	return BadgeEngineConfig{
		EnableNotifications: true,
	}
}

// NewBadgeEngine creates a new badge engine.
func NewBadgeEngine(config BadgeEngineConfig) *BadgeEngine {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BadgeEngine{
		grants:        config.Grants,
		trackers:      config.Trackers,
		ledger:        config.Ledger,
		notifier:      config.Notifier,
		executor:      config.Executor,
		clock:         clock,
		logger:        logger.With(logging.Component("badge")),
		notifications: config.EnableNotifications,
	}
}

// Grant awards the badge directly, bypassing progress checks. It returns
// true when the badge was newly granted and false when the user already
// held it; a repeat grant never re-credits points.
func (e *BadgeEngine) Grant(ctx context.Context, userID, badgeID string) (bool, error) {
	b, ok := badge.Find(badgeID)
	if !ok {
		return false, shared.ErrBadgeNotFound
	}

	granted, err := e.grants.Granted(ctx, userID, b.ID)
	if err != nil {
		return false, err
	}
	if granted {
		e.logger.Debug("badge already granted",
			logging.UserID(userID),
			logging.BadgeID(b.ID),
		)
		return false, nil
	}

	if err := e.grants.Grant(ctx, userID, b.ID); err != nil {
		return false, err
	}

	e.creditReward(ctx, userID, b)

	e.logger.Info("badge granted",
		logging.UserID(userID),
		logging.BadgeID(b.ID),
		slog.String("rarity", b.Rarity.String()),
	)

	return true, nil
}

// creditReward credits the rarity reward and feeds the points tracker.
// Failures are logged and the grant stands.
func (e *BadgeEngine) creditReward(ctx context.Context, userID string, b badge.Badge) {
	reward := b.Rarity.PointReward()
	if reward <= 0 {
		return
	}

	if e.ledger != nil {
		if _, err := e.ledger.Add(ctx, userID, reward, "badge "+b.ID); err != nil {
			e.logger.Error("failed to credit badge reward",
				logging.UserID(userID),
				logging.BadgeID(b.ID),
				logging.Points(reward),
				logging.Err(err),
			)
		}
	}

	// A badge bound to the points tracker must not feed that tracker from
	// its own reward, or the grant would immediately re-qualify its family.
	if b.TrackerID == badge.TrackerPointsEarned {
		return
	}

	if e.trackers != nil {
		err := e.trackers.AddProgress(ctx, userID, badge.TrackerPointsEarned, []tracker.Value{
			tracker.NumberValue(float64(reward)),
		})
		if err != nil {
			e.logger.Error("failed to record earned points",
				logging.UserID(userID),
				logging.BadgeID(b.ID),
				logging.Err(err),
			)
		}
	}
}

// CheckAndGrant evaluates every badge bound to the tracker and grants those
// whose progress reached 1. Per-badge failures are logged and skipped so
// one broken badge cannot block the rest. At most one notification is
// scheduled per call, covering every badge granted in it. The since
// argument feeds time-based strategies and may be zero.
func (e *BadgeEngine) CheckAndGrant(ctx context.Context, userID, trackerID string, since time.Time) ([]string, error) {
	if _, err := canonicalUser(userID); err != nil {
		return nil, err
	}

	var earnedIDs []string
	var earnedNames []string

	for _, b := range badge.BoundTo(trackerID) {
		if !b.HasProgress() {
			continue
		}

		granted, err := e.grants.Granted(ctx, userID, b.ID)
		if err != nil {
			e.logger.Error("failed to check grant",
				logging.UserID(userID),
				logging.BadgeID(b.ID),
				logging.Err(err),
			)
			continue
		}
		if granted {
			continue
		}

		progress, err := e.trackers.GetProgress(ctx, userID, b, since)
		if err != nil {
			e.logger.Error("failed to evaluate progress",
				logging.UserID(userID),
				logging.BadgeID(b.ID),
				logging.Err(err),
			)
			continue
		}
		if progress < 1 {
			continue
		}

		newly, err := e.Grant(ctx, userID, b.ID)
		if err != nil {
			e.logger.Error("failed to grant earned badge",
				logging.UserID(userID),
				logging.BadgeID(b.ID),
				logging.Err(err),
			)
			continue
		}
		if newly {
			earnedIDs = append(earnedIDs, b.ID)
			earnedNames = append(earnedNames, b.Name)
		}
	}

	if len(earnedIDs) > 0 {
		e.scheduleNotification(ctx, userID, earnedNames)
	}

	return earnedIDs, nil
}

// Revoke removes the user's grant. Points already credited are kept.
func (e *BadgeEngine) Revoke(ctx context.Context, userID, badgeID string) error {
	b, ok := badge.Find(badgeID)
	if !ok {
		return shared.ErrBadgeNotFound
	}

	if err := e.grants.Revoke(ctx, userID, b.ID); err != nil {
		return err
	}

	e.logger.Info("badge revoked",
		logging.UserID(userID),
		logging.BadgeID(b.ID),
	)
	return nil
}

// ResetProgress clears the badge's tracker and revokes the grant. The
// tracker is shared by every badge bound to it, so resetting one badge of
// a family resets the family's progress.
func (e *BadgeEngine) ResetProgress(ctx context.Context, userID, badgeID string) error {
	b, ok := badge.Find(badgeID)
	if !ok {
		return shared.ErrBadgeNotFound
	}

	if b.TrackerID != "" {
		if err := e.trackers.Delete(ctx, userID, b.TrackerID); err != nil {
			return err
		}
	}

	if err := e.grants.Revoke(ctx, userID, b.ID); err != nil {
		return err
	}

	e.logger.Info("badge progress reset",
		logging.UserID(userID),
		logging.BadgeID(b.ID),
	)
	return nil
}

// Progress reports the user's progress toward one badge in [0, 1].
func (e *BadgeEngine) Progress(ctx context.Context, userID, badgeID string, since time.Time) (float64, error) {
	b, ok := badge.Find(badgeID)
	if !ok {
		return 0, shared.ErrBadgeNotFound
	}
	return e.trackers.GetProgress(ctx, userID, b, since)
}

// Badges lists the ids of every badge the user holds.
func (e *BadgeEngine) Badges(ctx context.Context, userID string) ([]string, error) {
	return e.grants.List(ctx, userID)
}

// scheduleNotification submits one notification covering the whole batch.
func (e *BadgeEngine) scheduleNotification(ctx context.Context, userID string, names []string) {
	if !e.notifications || e.notifier == nil || e.executor == nil {
		return
	}

	user, err := canonicalUser(userID)
	if err != nil {
		return
	}

	title := "New badge earned"
	if len(names) > 1 {
		title = "New badges earned"
	}
	body := "You earned: " + strings.Join(names, ", ")

	task := tasks.NewTask(taskKindBadgeNotify, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, notify.New(user, notify.KindBadgeEarned, title, body))
	})
	if err := e.executor.Submit(ctx, task); err != nil {
		e.logger.Error("failed to schedule badge notification",
			logging.UserID(user),
			logging.Err(err),
		)
	}
}
