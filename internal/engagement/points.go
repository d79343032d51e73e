package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/canopy-press/canopy-engagement/internal/domain/identity"
	"github.com/canopy-press/canopy-engagement/internal/domain/points"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/timeutil"
)

// PointsLedger keeps one non-negative impact points balance per user.
// Adjustments are read-modify-write without compare-and-swap: concurrent
// writers can lose an update, which the engine accepts because every
// adjustment is additive and balances are advisory, not monetary.
type PointsLedger struct {
	store    kv.Store
	clock    timeutil.Clock
	logger   *slog.Logger
	migrator *Migrator
}

// PointsLedgerConfig contains configuration for PointsLedger.
type PointsLedgerConfig struct {
	Store kv.Store
	Clock timeutil.Clock

	// Migrator, when set, moves legacy records surfaced by fallback reads
	// to their canonical keys.
	Migrator *Migrator

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewPointsLedger creates a new points ledger.
func NewPointsLedger(config PointsLedgerConfig) *PointsLedger {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PointsLedger{
		store:    config.Store,
		clock:    clock,
		logger:   logger.With(logging.Component("points")),
		migrator: config.Migrator,
	}
}

// balanceMetadata is stored alongside the balance for observability.
type balanceMetadata struct {
	UpdatedAt  int64  `json:"updatedAt"`
	LastReason string `json:"lastReason,omitempty"`
}

// Get returns the user's balance. A user with no record has zero points;
// an unreadable stored balance is treated as zero and logged.
func (l *PointsLedger) Get(ctx context.Context, userID string) (int64, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return 0, err
	}
	return l.read(ctx, user, userID)
}

// Add credits amount to the user's balance and returns the new balance.
// The reason labels the adjustment in logs and metadata.
func (l *PointsLedger) Add(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, shared.NewDomainError("points", "Add", shared.ErrNegativeValue, "credit amount cannot be negative")
	}
	return l.apply(ctx, userID, amount, reason)
}

// Remove debits amount from the user's balance, flooring at zero, and
// returns the new balance.
func (l *PointsLedger) Remove(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	if amount < 0 {
		return 0, shared.NewDomainError("points", "Remove", shared.ErrNegativeValue, "debit amount cannot be negative")
	}
	return l.apply(ctx, userID, -amount, reason)
}

// Set overwrites the user's balance. Negative balances are rejected.
func (l *PointsLedger) Set(ctx context.Context, userID string, value int64, reason string) (int64, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return 0, err
	}

	balance := points.Balance(value)
	if !balance.IsValid() {
		return 0, shared.ErrNegativeBalance
	}

	if err := l.write(ctx, user, balance, reason); err != nil {
		return 0, err
	}

	l.logger.Info("points balance set",
		logging.UserID(user),
		logging.Points(balance.Int64()),
		slog.String("reason", reason),
	)

	return balance.Int64(), nil
}

// apply shifts the balance by delta, flooring at zero.
func (l *PointsLedger) apply(ctx context.Context, userID string, delta int64, reason string) (int64, error) {
	user, err := canonicalUser(userID)
	if err != nil {
		return 0, err
	}

	current, err := l.read(ctx, user, userID)
	if err != nil {
		return 0, err
	}

	next := points.Balance(current).Apply(delta)
	if err := l.write(ctx, user, next, reason); err != nil {
		return 0, err
	}

	l.logger.Info("points adjusted",
		logging.UserID(user),
		slog.Int64("delta", delta),
		logging.Points(next.Int64()),
		slog.String("reason", reason),
	)

	return next.Int64(), nil
}

func (l *PointsLedger) read(ctx context.Context, user, rawID string) (int64, error) {
	legacyKey := ""
	if rawID != user {
		legacyKey = pointsKey(rawID)
	}

	raw, err := readWithLegacyFallback(ctx, l.store, l.logger, pointsKey(user), legacyKey, l.migrator)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, shared.WrapError("points", "Get", shared.ErrExternalService, "read balance", err)
	}

	balance, err := points.Parse(string(raw))
	if err != nil {
		l.logger.Warn("malformed points balance, treating as zero",
			logging.UserID(user),
			logging.Err(err),
		)
		return 0, nil
	}

	return balance.Int64(), nil
}

func (l *PointsLedger) write(ctx context.Context, user string, balance points.Balance, reason string) error {
	metadata, _ := json.Marshal(balanceMetadata{
		UpdatedAt:  timeutil.UnixMilli(l.clock.Now()),
		LastReason: reason,
	})

	err := l.store.Put(ctx, pointsKey(user), []byte(balance.Format()), kv.PutOptions{Metadata: metadata})
	if err != nil {
		return shared.WrapError("points", "Put", shared.ErrExternalService, "write balance", err)
	}
	return nil
}

// canonicalUser validates and normalizes a caller-supplied user id.
func canonicalUser(userID string) (string, error) {
	user := identity.Normalize(userID)
	if user == "" {
		return "", shared.ErrEmptyIdentifier
	}
	return user, nil
}
