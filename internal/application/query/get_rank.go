package query

import (
	"context"
	"fmt"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANK QUERY
// Returns one user's position on a journey leaderboard. Rank 0 means the
// user is not on the board; a rank is only claimed when the cached
// snapshot can prove it.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankQuery contains the rank request parameters.
type GetRankQuery struct {
	// JourneyType selects the board: article, activity, or event.
	JourneyType string

	// UserID is the user to look up; legacy zero-padded ids are accepted.
	UserID string
}

// Validate checks the query parameters.
func (q GetRankQuery) Validate() error {
	if _, err := journey.ParseType(q.JourneyType); err != nil {
		return err
	}
	if q.UserID == "" {
		return fmt.Errorf("get_rank: %w", shared.ErrEmptyIdentifier)
	}
	return nil
}

// GetRankResult contains the rank response.
type GetRankResult struct {
	// JourneyType echoes the requested board.
	JourneyType string `json:"journeyType"`

	// UserID echoes the requested user.
	UserID string `json:"userId"`

	// Rank is the 1-based position, or 0 when unranked.
	Rank int `json:"rank"`

	// Ranked is true when the user holds a position on the board.
	Ranked bool `json:"ranked"`
}

// GetRankHandler handles rank queries.
type GetRankHandler struct {
	leaderboard *engagement.LeaderboardIndex
}

// NewGetRankHandler creates a new GetRankHandler.
func NewGetRankHandler(leaderboard *engagement.LeaderboardIndex) *GetRankHandler {
	return &GetRankHandler{leaderboard: leaderboard}
}

// Handle executes the rank query.
func (h *GetRankHandler) Handle(ctx context.Context, q GetRankQuery) (*GetRankResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	jt, _ := journey.ParseType(q.JourneyType)

	rank, err := h.leaderboard.Rank(ctx, jt, q.UserID)
	if err != nil {
		return nil, err
	}

	return &GetRankResult{
		JourneyType: jt.String(),
		UserID:      q.UserID,
		Rank:        rank.Int(),
		Ranked:      !rank.IsUnranked(),
	}, nil
}
