package command

import (
	"context"

	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE LEGACY COMMAND
// Runs the bulk migration sweep that moves zero-padded legacy keys to their
// canonical form. Safe to rerun; a converged store migrates nothing.
// ══════════════════════════════════════════════════════════════════════════════

// MigrateLegacyCommand contains the data to run a migration sweep.
type MigrateLegacyCommand struct {
	// AuthorityToken authenticates the caller.
	AuthorityToken string

	// DryRun reports what would be migrated without moving anything.
	DryRun bool
}

// MigrateLegacyResult contains the result of a migration sweep.
type MigrateLegacyResult struct {
	// Scanned is the number of keys examined.
	Scanned int

	// Migrated is the number of keys moved (or that would move on DryRun).
	Migrated int

	// Failed is the number of keys whose migration failed; always zero
	// on DryRun.
	Failed int

	// DryRun echoes the request mode.
	DryRun bool
}

// MigrateLegacyHandler handles the MigrateLegacyCommand.
type MigrateLegacyHandler struct {
	authority *Authority
	migrator  *engagement.Migrator
}

// NewMigrateLegacyHandler creates a new MigrateLegacyHandler.
func NewMigrateLegacyHandler(authority *Authority, migrator *engagement.Migrator) *MigrateLegacyHandler {
	return &MigrateLegacyHandler{
		authority: authority,
		migrator:  migrator,
	}
}

// Handle executes the migration sweep.
func (h *MigrateLegacyHandler) Handle(ctx context.Context, cmd MigrateLegacyCommand) (*MigrateLegacyResult, error) {
	if err := h.authority.Verify(cmd.AuthorityToken); err != nil {
		return nil, err
	}

	var (
		report engagement.SweepReport
		err    error
	)
	if cmd.DryRun {
		report, err = h.migrator.Plan(ctx)
	} else {
		report, err = h.migrator.Sweep(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &MigrateLegacyResult{
		Scanned:  report.Scanned,
		Migrated: report.Migrated,
		Failed:   report.Failed,
		DryRun:   cmd.DryRun,
	}, nil
}
