package engagement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/infrastructure/persistence/kv"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
)

// Migrator moves records written under legacy user identifiers (zero-padded
// numerics from the old key scheme) to their canonical keys. Writes always
// target canonical keys; the migrator exists so reads eventually stop
// needing the legacy fallback.
type Migrator struct {
	store    kv.Store
	logger   *slog.Logger
	pageSize int
}

// MigratorConfig contains configuration for Migrator.
type MigratorConfig struct {
	Store kv.Store

	// PageSize is the listing page size used by Sweep.
	PageSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewMigrator creates a new migrator.
func NewMigrator(config MigratorConfig) *Migrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = kv.DefaultListLimit
	}

	return &Migrator{
		store:    config.Store,
		logger:   logger.With(logging.Component("identity")),
		pageSize: pageSize,
	}
}

// MigrateKey copies the record at oldKey to newKey and deletes oldKey.
// Value and metadata are carried over; TTL is not, so a migrated journey
// record persists until its next increment re-arms the expiry. The
// operation is idempotent: an absent oldKey is a no-op, and rerunning
// after a partial failure converges. Any record already at newKey is
// overwritten by the legacy one.
func (m *Migrator) MigrateKey(ctx context.Context, oldKey, newKey string) error {
	if oldKey == newKey || oldKey == "" || newKey == "" {
		return nil
	}

	value, metadata, err := m.store.GetWithMetadata(ctx, oldKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return shared.WrapError("identity", "MigrateKey", shared.ErrExternalService, "read legacy record", err)
	}

	if err := m.store.Put(ctx, newKey, value, kv.PutOptions{Metadata: metadata}); err != nil {
		return shared.WrapError("identity", "MigrateKey", shared.ErrExternalService, "write canonical record", err)
	}

	if err := m.store.Delete(ctx, oldKey); err != nil {
		return shared.WrapError("identity", "MigrateKey", shared.ErrExternalService, "delete legacy record", err)
	}

	return nil
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned  int
	Migrated int
	Failed   int
}

// Sweep walks every key family the engine owns and migrates records whose
// user segment is not canonical. Individual key failures are logged and
// counted, never fatal; listing failures abort the sweep. The sweep is
// safe to rerun: a second pass over a converged store migrates nothing.
func (m *Migrator) Sweep(ctx context.Context) (SweepReport, error) {
	return m.sweep(ctx, true)
}

// Plan reports what Sweep would migrate without moving anything.
func (m *Migrator) Plan(ctx context.Context) (SweepReport, error) {
	return m.sweep(ctx, false)
}

func (m *Migrator) sweep(ctx context.Context, apply bool) (SweepReport, error) {
	var report SweepReport

	for _, prefix := range sweepPrefixes {
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			page, err := m.store.List(ctx, kv.ListOptions{
				Prefix: prefix,
				Cursor: cursor,
				Limit:  m.pageSize,
			})
			if err != nil {
				return report, shared.WrapError("identity", "Sweep", shared.ErrExternalService, "list keys", err)
			}

			for _, k := range page.Keys {
				report.Scanned++

				canonical, ok := canonicalKeyFor(k.Name)
				if !ok || canonical == k.Name {
					continue
				}

				if !apply {
					report.Migrated++
					m.logger.Debug("would migrate legacy key",
						logging.Key(k.Name),
						slog.String("canonical", canonical),
					)
					continue
				}

				if err := m.MigrateKey(ctx, k.Name, canonical); err != nil {
					report.Failed++
					m.logger.Error("legacy key migration failed",
						logging.Key(k.Name),
						logging.Err(err),
					)
					continue
				}

				report.Migrated++
				m.logger.Info("migrated legacy key",
					logging.Key(k.Name),
					slog.String("canonical", canonical),
				)
			}

			if page.Complete {
				break
			}
			cursor = page.Cursor
		}
	}

	m.logger.Info("legacy sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("migrated", report.Migrated),
		slog.Int("failed", report.Failed),
		slog.Bool("dry_run", !apply),
	)

	return report, nil
}

// readWithLegacyFallback fetches the canonical key and, on a miss, the key
// built from the caller's raw identifier. When a migrator is supplied the
// legacy record is moved to its canonical key after a successful fallback
// read; migration failures are logged and the read still succeeds.
func readWithLegacyFallback(ctx context.Context, store kv.Store, logger *slog.Logger, canonicalKey, legacyKey string, migrator *Migrator) ([]byte, error) {
	value, err := store.Get(ctx, canonicalKey)
	if err == nil || !errors.Is(err, kv.ErrNotFound) {
		return value, err
	}

	if legacyKey == "" || legacyKey == canonicalKey {
		return nil, kv.ErrNotFound
	}

	value, err = store.Get(ctx, legacyKey)
	if err != nil {
		return nil, err
	}

	if migrator != nil {
		if merr := migrator.MigrateKey(ctx, legacyKey, canonicalKey); merr != nil {
			logger.Warn("lazy migration failed",
				logging.Key(legacyKey),
				logging.Err(merr),
			)
		}
	}

	return value, nil
}
