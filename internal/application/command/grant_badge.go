package command

import (
	"context"
	"fmt"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT BADGE COMMAND
// Awards a badge directly, bypassing tracker progress. Used by moderators
// for editorial badges (staff_pick) and support interventions.
// ══════════════════════════════════════════════════════════════════════════════

// GrantBadgeCommand contains the data to grant a badge.
type GrantBadgeCommand struct {
	// AuthorityToken authenticates the caller.
	AuthorityToken string

	// UserID is the recipient; legacy zero-padded ids are accepted.
	UserID string

	// BadgeID must name a badge in the registry.
	BadgeID string
}

// Validate validates the command.
func (c GrantBadgeCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("grant_badge: %w", shared.ErrEmptyIdentifier)
	}
	if c.BadgeID == "" {
		return fmt.Errorf("grant_badge: badge id is required: %w", shared.ErrEmptyValue)
	}
	return nil
}

// GrantBadgeResult contains the result of granting a badge.
type GrantBadgeResult struct {
	// UserID is the recipient.
	UserID string

	// BadgeID is the badge granted.
	BadgeID string

	// Granted is true when the badge was newly granted, false when the
	// user already held it.
	Granted bool
}

// GrantBadgeHandler handles the GrantBadgeCommand.
type GrantBadgeHandler struct {
	authority *Authority
	badges    *engagement.BadgeEngine
}

// NewGrantBadgeHandler creates a new GrantBadgeHandler.
func NewGrantBadgeHandler(authority *Authority, badges *engagement.BadgeEngine) *GrantBadgeHandler {
	return &GrantBadgeHandler{
		authority: authority,
		badges:    badges,
	}
}

// Handle executes the grant badge command.
func (h *GrantBadgeHandler) Handle(ctx context.Context, cmd GrantBadgeCommand) (*GrantBadgeResult, error) {
	if err := h.authority.Verify(cmd.AuthorityToken); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	granted, err := h.badges.Grant(ctx, cmd.UserID, cmd.BadgeID)
	if err != nil {
		return nil, err
	}

	return &GrantBadgeResult{
		UserID:  cmd.UserID,
		BadgeID: cmd.BadgeID,
		Granted: granted,
	}, nil
}
