package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/badge"
	"github.com/canopy-press/canopy-engagement/internal/domain/identity"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/domain/tracker"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// TrackerStore records engagement signals per user and tracker. A tracker
// is either numeric (entries sum) or a string set (entries union); the
// first write fixes the kind. Updates that conflict with the stored kind
// are dropped with a warning rather than failing the caller, because
// tracker writes ride on user-facing actions that must not break over
// dirty telemetry.
type TrackerStore struct {
	store    kv.Store
	grants   *Grants
	clock    timeutil.Clock
	logger   *slog.Logger
	migrator *Migrator
}

// TrackerStoreConfig contains configuration for TrackerStore.
type TrackerStoreConfig struct {
	Store  kv.Store
	Grants *Grants
	Clock  timeutil.Clock

	// Migrator, when set, moves legacy records surfaced by fallback reads
	// to their canonical keys.
	Migrator *Migrator

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewTrackerStore creates a new tracker store.
func NewTrackerStore(config TrackerStoreConfig) *TrackerStore {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TrackerStore{
		store:    config.Store,
		grants:   config.Grants,
		clock:    clock,
		logger:   logger.With(logging.Component("tracker")),
		migrator: config.Migrator,
	}
}

// trackerMetadata is stored alongside the payload for observability.
type trackerMetadata struct {
	Kind      string `json:"kind"`
	UpdatedAt int64  `json:"updatedAt"`
}

// AddProgress applies values to the user's tracker. All values in one call
// must share a kind; mixing numbers and strings is a caller bug and fails
// validation. A call whose kind conflicts with the stored tracker is
// dropped with a warning and reports success. An empty values slice is a
// no-op.
func (s *TrackerStore) AddProgress(ctx context.Context, userID, trackerID string, values []tracker.Value) error {
	user, err := canonicalUser(userID)
	if err != nil {
		return err
	}
	if trackerID == "" {
		return shared.NewDomainError("tracker", "AddProgress", shared.ErrEmptyValue, "tracker id cannot be empty")
	}

	kind, sum, tokens, err := tracker.PartitionInput(values)
	if err != nil {
		return err
	}
	if kind == tracker.KindUnknown {
		return nil
	}

	entries, err := s.load(ctx, user, userID, trackerID)
	if err != nil {
		return err
	}

	flat := entries.Flatten()
	if stored := flat.DominantKind(); stored != tracker.KindUnknown && stored != kind {
		s.logger.Warn("tracker value kind conflict, update dropped",
			logging.UserID(user),
			logging.TrackerID(trackerID),
			slog.String("stored_kind", stored.String()),
			slog.String("update_kind", kind.String()),
		)
		return nil
	}

	now := timeutil.UnixMilli(s.clock.Now())
	var next tracker.Entries
	switch kind {
	case tracker.KindNumber:
		next = flat.AddNumber(sum, now)
	case tracker.KindString:
		// Tokens that are entity ids may arrive zero-padded; store them
		// canonically so "0042" and "42" count once.
		for i, tok := range tokens {
			tokens[i] = identity.Normalize(tok)
		}
		next = flat.AddTokens(tokens, now)
	}

	if err := s.save(ctx, user, trackerID, kind, next, now); err != nil {
		return err
	}

	s.logger.Debug("tracker progress recorded",
		logging.UserID(user),
		logging.TrackerID(trackerID),
		slog.String("kind", kind.String()),
	)

	return nil
}

// Snapshot returns the user's flattened tracker entries. An absent tracker
// yields an empty snapshot, not an error.
func (s *TrackerStore) Snapshot(ctx context.Context, userID, trackerID string) (tracker.Entries, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.load(ctx, user, userID, trackerID)
	if err != nil {
		return nil, err
	}
	return entries.Flatten(), nil
}

// GetProgress scores the user's progress toward a badge in [0, 1]. Badges
// without a progress function report 1 when granted and 0 otherwise. The
// since argument feeds time-based strategies and may be zero for the rest.
func (s *TrackerStore) GetProgress(ctx context.Context, userID string, b badge.Badge, since time.Time) (float64, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return 0, err
	}

	if !b.HasProgress() {
		granted, err := s.grants.Granted(ctx, userID, b.ID)
		if err != nil {
			return 0, err
		}
		if granted {
			return 1, nil
		}
		return 0, nil
	}

	in := badge.Input{}
	if b.TrackerID != "" {
		entries, err := s.load(ctx, user, userID, b.TrackerID)
		if err != nil {
			return 0, err
		}
		flat := entries.Flatten()
		in = badge.Input{Sum: flat.Sum(), Tokens: flat.Tokens()}
	}

	evalCtx := badge.Context{Now: s.clock.Now(), Since: since}
	return b.Strategy.Evaluate(in, evalCtx), nil
}

// Delete removes the user's tracker record, clearing both the canonical
// key and any legacy-id key so the fallback read cannot resurrect it.
func (s *TrackerStore) Delete(ctx context.Context, userID, trackerID string) error {
	user, err := canonicalUser(userID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, trackerKey(user, trackerID)); err != nil {
		return shared.WrapError("tracker", "Delete", shared.ErrExternalService, "delete tracker", err)
	}
	if userID != user {
		if err := s.store.Delete(ctx, trackerKey(userID, trackerID)); err != nil {
			return shared.WrapError("tracker", "Delete", shared.ErrExternalService, "delete legacy tracker", err)
		}
	}

	s.logger.Info("tracker reset",
		logging.UserID(user),
		logging.TrackerID(trackerID),
	)
	return nil
}

// load reads and decodes the tracker payload. Records from the old system
// may hold array values; Decode expands them, and the next save persists
// the flattened form. A payload that does not decode at all is treated as
// empty and logged.
func (s *TrackerStore) load(ctx context.Context, user, rawID, trackerID string) (tracker.Entries, error) {
	legacyKey := ""
	if rawID != user {
		legacyKey = trackerKey(rawID, trackerID)
	}

	raw, err := readWithLegacyFallback(ctx, s.store, s.logger, trackerKey(user, trackerID), legacyKey, s.migrator)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, shared.WrapError("tracker", "Load", shared.ErrExternalService, "read tracker", err)
	}

	entries, err := tracker.Decode(raw)
	if err != nil {
		s.logger.Warn("corrupt tracker payload, starting empty",
			logging.UserID(user),
			logging.TrackerID(trackerID),
			logging.Err(err),
		)
		return nil, nil
	}

	return entries, nil
}

func (s *TrackerStore) save(ctx context.Context, user, trackerID string, kind tracker.Kind, entries tracker.Entries, now int64) error {
	payload, err := tracker.Encode(entries)
	if err != nil {
		return shared.WrapError("tracker", "Save", shared.ErrInvalidFormat, "encode tracker", err)
	}

	metadata, _ := json.Marshal(trackerMetadata{
		Kind:      kind.String(),
		UpdatedAt: now,
	})

	if err := s.store.Put(ctx, trackerKey(user, trackerID), payload, kv.PutOptions{Metadata: metadata}); err != nil {
		return shared.WrapError("tracker", "Save", shared.ErrExternalService, "write tracker", err)
	}
	return nil
}
