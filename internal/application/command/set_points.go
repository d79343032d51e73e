package command

import (
	"context"
	"fmt"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// SET POINTS COMMAND
// Overwrites a user's impact point balance. The normal paths only add and
// remove; a direct set exists for support corrections and abuse cleanup.
// ══════════════════════════════════════════════════════════════════════════════

// SetPointsCommand contains the data to set a balance.
type SetPointsCommand struct {
	// AuthorityToken authenticates the caller.
	AuthorityToken string

	// UserID is the balance owner; legacy zero-padded ids are accepted.
	UserID string

	// Balance is the new balance. Negative values are rejected.
	Balance int64

	// Reason is recorded in the balance metadata for audit.
	Reason string
}

// Validate validates the command.
func (c SetPointsCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("set_points: %w", shared.ErrEmptyIdentifier)
	}
	if c.Balance < 0 {
		return shared.ErrNegativeBalance
	}
	return nil
}

// SetPointsResult contains the result of setting a balance.
type SetPointsResult struct {
	UserID string

	// Balance is the balance after the write.
	Balance int64
}

// SetPointsHandler handles the SetPointsCommand.
type SetPointsHandler struct {
	authority *Authority
	points    *engagement.PointsLedger
}

// NewSetPointsHandler creates a new SetPointsHandler.
func NewSetPointsHandler(authority *Authority, points *engagement.PointsLedger) *SetPointsHandler {
	return &SetPointsHandler{
		authority: authority,
		points:    points,
	}
}

// Handle executes the set points command.
func (h *SetPointsHandler) Handle(ctx context.Context, cmd SetPointsCommand) (*SetPointsResult, error) {
	if err := h.authority.Verify(cmd.AuthorityToken); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "admin set"
	}

	balance, err := h.points.Set(ctx, cmd.UserID, cmd.Balance, reason)
	if err != nil {
		return nil, err
	}

	return &SetPointsResult{
		UserID:  cmd.UserID,
		Balance: balance,
	}, nil
}
