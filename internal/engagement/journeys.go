package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/tasks"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// Task kinds scheduled by journey increments.
const (
	taskKindJourneyAward = "points.journey_award"
	taskKindRankBonus    = "points.rank_bonus"
)

// JourneyStore tracks consecutive-activity streaks per user and journey
// type. Each increment bumps the streak, re-arms the record's expiry, and
// schedules point awards in the background; a record that expires resets
// the streak to zero by disappearing.
type JourneyStore struct {
	store       kv.Store
	ledger      *PointsLedger
	board       *LeaderboardIndex
	executor    tasks.Executor
	clock       timeutil.Clock
	logger      *slog.Logger
	migrator    *Migrator
	ttl         time.Duration
	flatAward   int64
	bonusMin    int
	bonusMax    int
	rankBonuses bool
}

// JourneyStoreConfig contains configuration for JourneyStore.
// Start from DefaultJourneyStoreConfig and override what differs.
type JourneyStoreConfig struct {
	Store       kv.Store
	Ledger      *PointsLedger
	Leaderboard *LeaderboardIndex
	Executor    tasks.Executor
	Clock       timeutil.Clock

	// Migrator, when set, moves legacy records surfaced by fallback reads
	// to their canonical keys.
	Migrator *Migrator

	// Logger for structured logging.
	Logger *slog.Logger

	// TTL is how long a journey record lives without a new increment.
	TTL time.Duration

	// FlatAward is the points credited for every increment.
	FlatAward int64

	// BonusMin and BonusMax bound the rank bonus: a user ranked r in the
	// top BonusMax earns BonusMax-r points, clamped to [BonusMin, BonusMax].
	BonusMin int
	BonusMax int

	// EnableRankBonuses schedules the rank bonus award on each increment.
	EnableRankBonuses bool
}

// DefaultJourneyStoreConfig returns sensible defaults.
func DefaultJourneyStoreConfig() JourneyStoreConfig {
	return JourneyStoreConfig{
		TTL:               journey.DefaultTTL,
		FlatAward:         1,
		BonusMin:          1,
		BonusMax:          10,
		EnableRankBonuses: true,
	}
}

// NewJourneyStore creates a new journey store.
func NewJourneyStore(config JourneyStoreConfig) *JourneyStore {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.TTL <= 0 {
		config.TTL = journey.DefaultTTL
	}
	if config.BonusMax <= 0 {
		config.BonusMax = 10
	}
	if config.BonusMin <= 0 {
		config.BonusMin = 1
	}

	return &JourneyStore{
		store:       config.Store,
		ledger:      config.Ledger,
		board:       config.Leaderboard,
		executor:    config.Executor,
		clock:       clock,
		logger:      logger.With(logging.Component("journey")),
		migrator:    config.Migrator,
		ttl:         config.TTL,
		flatAward:   config.FlatAward,
		bonusMin:    config.BonusMin,
		bonusMax:    config.BonusMax,
		rankBonuses: config.EnableRankBonuses,
	}
}

// Get returns the user's journey state. An absent or expired record reads
// as the zero state, never an error.
func (s *JourneyStore) Get(ctx context.Context, t journey.Type, userID string) (journey.State, error) {
	if !t.IsValid() {
		return journey.State{}, shared.ErrUnknownJourneyType
	}
	user, err := canonicalUser(userID)
	if err != nil {
		return journey.State{}, err
	}

	return loadJourneyState(ctx, s.store, s.logger, s.migrator, t, user, userID)
}

// Increment bumps the user's streak by one, unconditionally: the store
// does not judge whether activity days are consecutive, expiry does.
// The new state is written with a fresh TTL, then point awards are
// scheduled in the background. Award failures never affect the increment.
func (s *JourneyStore) Increment(ctx context.Context, t journey.Type, userID string) (journey.State, error) {
	current, err := s.Get(ctx, t, userID)
	if err != nil {
		return journey.State{}, err
	}
	user, err := canonicalUser(userID)
	if err != nil {
		return journey.State{}, err
	}

	next := current.Next(timeutil.UnixMilli(s.clock.Now()))

	payload, err := json.Marshal(next)
	if err != nil {
		return journey.State{}, shared.WrapError("journey", "Increment", shared.ErrInvalidFormat, "encode state", err)
	}

	// Metadata mirrors the state so leaderboard builds can read streaks
	// straight from key listings.
	opts := kv.PutOptions{TTL: s.ttl, Metadata: json.RawMessage(payload)}
	if err := s.store.Put(ctx, journeyKey(t, user), payload, opts); err != nil {
		return journey.State{}, shared.WrapError("journey", "Increment", shared.ErrExternalService, "write state", err)
	}

	s.scheduleAwards(ctx, t, user)

	s.logger.Info("journey incremented",
		logging.JourneyType(t.String()),
		logging.UserID(user),
		logging.Streak(next.Streak),
	)

	return next, nil
}

// Reset deletes the user's journey record, clearing both the canonical
// key and any legacy-id key so the fallback read cannot resurrect it.
func (s *JourneyStore) Reset(ctx context.Context, t journey.Type, userID string) error {
	if !t.IsValid() {
		return shared.ErrUnknownJourneyType
	}
	user, err := canonicalUser(userID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, journeyKey(t, user)); err != nil {
		return shared.WrapError("journey", "Reset", shared.ErrExternalService, "delete state", err)
	}
	if userID != user {
		if err := s.store.Delete(ctx, journeyKey(t, userID)); err != nil {
			return shared.WrapError("journey", "Reset", shared.ErrExternalService, "delete legacy state", err)
		}
	}

	s.logger.Info("journey reset",
		logging.JourneyType(t.String()),
		logging.UserID(user),
	)
	return nil
}

// scheduleAwards submits the flat increment award and, when enabled, the
// rank bonus. Submission failures are logged and dropped.
func (s *JourneyStore) scheduleAwards(ctx context.Context, t journey.Type, user string) {
	if s.executor == nil || s.ledger == nil {
		return
	}

	if s.flatAward > 0 {
		award := s.flatAward
		reason := t.String() + " journey increment"
		task := tasks.NewTask(taskKindJourneyAward, func(ctx context.Context) error {
			_, err := s.ledger.Add(ctx, user, award, reason)
			return err
		})
		if err := s.executor.Submit(ctx, task); err != nil {
			s.logger.Error("failed to schedule journey award",
				logging.JourneyType(t.String()),
				logging.UserID(user),
				logging.Err(err),
			)
		}
	}

	if s.rankBonuses && s.board != nil {
		task := tasks.NewTask(taskKindRankBonus, func(ctx context.Context) error {
			return s.awardRankBonus(ctx, t, user)
		})
		if err := s.executor.Submit(ctx, task); err != nil {
			s.logger.Error("failed to schedule rank bonus",
				logging.JourneyType(t.String()),
				logging.UserID(user),
				logging.Err(err),
			)
		}
	}
}

// awardRankBonus credits a bonus scaled by the user's leaderboard position.
// Users outside the tracked top earn nothing.
func (s *JourneyStore) awardRankBonus(ctx context.Context, t journey.Type, user string) error {
	rank, err := s.board.Rank(ctx, t, user)
	if err != nil {
		return err
	}

	bonus := journey.RankBonus(rank.Int(), s.bonusMin, s.bonusMax)
	if bonus == 0 {
		return nil
	}

	reason := t.String() + " journey rank bonus"
	if _, err := s.ledger.Add(ctx, user, int64(bonus), reason); err != nil {
		return err
	}

	s.logger.Debug("rank bonus credited",
		logging.JourneyType(t.String()),
		logging.UserID(user),
		slog.Int("rank", rank.Int()),
		slog.Int("bonus", bonus),
	)
	return nil
}

// loadJourneyState reads one journey record, honoring the legacy key
// fallback. Corrupt payloads read as the zero state and are logged.
func loadJourneyState(ctx context.Context, store kv.Store, logger *slog.Logger, migrator *Migrator, t journey.Type, user, rawID string) (journey.State, error) {
	legacyKey := ""
	if rawID != user {
		legacyKey = journeyKey(t, rawID)
	}

	raw, err := readWithLegacyFallback(ctx, store, logger, journeyKey(t, user), legacyKey, migrator)
	if errors.Is(err, kv.ErrNotFound) {
		return journey.State{}, nil
	}
	if err != nil {
		return journey.State{}, shared.WrapError("journey", "Get", shared.ErrExternalService, "read state", err)
	}

	var state journey.State
	if err := json.Unmarshal(raw, &state); err != nil {
		logger.Warn("corrupt journey payload, treating as zero state",
			logging.JourneyType(t.String()),
			logging.UserID(user),
			logging.Err(err),
		)
		return journey.State{}, nil
	}

	return state, nil
}
