package command

import (
	"context"
	"fmt"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVOKE BADGE COMMAND
// Removes a grant. Points already credited for the badge are kept; taking
// them back would punish users for moderation mistakes.
// ══════════════════════════════════════════════════════════════════════════════

// RevokeBadgeCommand contains the data to revoke a badge.
type RevokeBadgeCommand struct {
	// AuthorityToken authenticates the caller.
	AuthorityToken string

	// UserID is the badge holder; legacy zero-padded ids are accepted.
	UserID string

	// BadgeID must name a badge in the registry.
	BadgeID string
}

// Validate validates the command.
func (c RevokeBadgeCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("revoke_badge: %w", shared.ErrEmptyIdentifier)
	}
	if c.BadgeID == "" {
		return fmt.Errorf("revoke_badge: badge id is required: %w", shared.ErrEmptyValue)
	}
	return nil
}

// RevokeBadgeResult contains the result of revoking a badge.
type RevokeBadgeResult struct {
	UserID  string
	BadgeID string
}

// RevokeBadgeHandler handles the RevokeBadgeCommand.
type RevokeBadgeHandler struct {
	authority *Authority
	badges    *engagement.BadgeEngine
}

// NewRevokeBadgeHandler creates a new RevokeBadgeHandler.
func NewRevokeBadgeHandler(authority *Authority, badges *engagement.BadgeEngine) *RevokeBadgeHandler {
	return &RevokeBadgeHandler{
		authority: authority,
		badges:    badges,
	}
}

// Handle executes the revoke badge command. Revoking a badge the user does
// not hold succeeds; the end state is the same.
func (h *RevokeBadgeHandler) Handle(ctx context.Context, cmd RevokeBadgeCommand) (*RevokeBadgeResult, error) {
	if err := h.authority.Verify(cmd.AuthorityToken); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if err := h.badges.Revoke(ctx, cmd.UserID, cmd.BadgeID); err != nil {
		return nil, err
	}

	return &RevokeBadgeResult{
		UserID:  cmd.UserID,
		BadgeID: cmd.BadgeID,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET BADGE PROGRESS COMMAND
// Clears the badge's tracker and revokes the grant, returning the user to
// a clean slate for that badge family.
// ══════════════════════════════════════════════════════════════════════════════

// ResetBadgeProgressCommand contains the data to reset badge progress.
type ResetBadgeProgressCommand struct {
	// AuthorityToken authenticates the caller.
	AuthorityToken string

	// UserID is the badge holder; legacy zero-padded ids are accepted.
	UserID string

	// BadgeID must name a badge in the registry. Badges sharing its
	// tracker lose their progress too.
	BadgeID string
}

// Validate validates the command.
func (c ResetBadgeProgressCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("reset_badge_progress: %w", shared.ErrEmptyIdentifier)
	}
	if c.BadgeID == "" {
		return fmt.Errorf("reset_badge_progress: badge id is required: %w", shared.ErrEmptyValue)
	}
	return nil
}

// ResetBadgeProgressResult contains the result of resetting progress.
type ResetBadgeProgressResult struct {
	UserID  string
	BadgeID string
}

// ResetBadgeProgressHandler handles the ResetBadgeProgressCommand.
type ResetBadgeProgressHandler struct {
	authority *Authority
	badges    *engagement.BadgeEngine
}

// NewResetBadgeProgressHandler creates a new ResetBadgeProgressHandler.
func NewResetBadgeProgressHandler(authority *Authority, badges *engagement.BadgeEngine) *ResetBadgeProgressHandler {
	return &ResetBadgeProgressHandler{
		authority: authority,
		badges:    badges,
	}
}

// Handle executes the reset badge progress command.
func (h *ResetBadgeProgressHandler) Handle(ctx context.Context, cmd ResetBadgeProgressCommand) (*ResetBadgeProgressResult, error) {
	if err := h.authority.Verify(cmd.AuthorityToken); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if err := h.badges.ResetProgress(ctx, cmd.UserID, cmd.BadgeID); err != nil {
		return nil, err
	}

	return &ResetBadgeProgressResult{
		UserID:  cmd.UserID,
		BadgeID: cmd.BadgeID,
	}, nil
}
