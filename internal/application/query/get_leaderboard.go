// Package query contains read operations following CQRS pattern.
// Queries never modify state beyond cache refreshes - they read and
// return data. Each query is a self-contained use case with its own
// request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Returns the cached top of one journey type's leaderboard. The snapshot
// is at most one cache TTL old; requesting more entries than the snapshot
// holds returns what is there.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// JourneyType selects the board: article, activity, or event.
	JourneyType string

	// Limit is the number of entries (default 10, capped at the
	// snapshot size).
	Limit int
}

// Validate checks the query parameters.
func (q *GetLeaderboardQuery) Validate() error {
	if _, err := journey.ParseType(q.JourneyType); err != nil {
		return err
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	return nil
}

// LeaderboardEntryDTO is one row of the returned board.
type LeaderboardEntryDTO struct {
	// Rank is the position in the board (starting at 1).
	Rank int `json:"rank"`

	// UserID is the canonical user identifier.
	UserID string `json:"userId"`

	// Streak is the journey streak that earned the position.
	Streak int `json:"streak"`
}

// GetLeaderboardResult contains the leaderboard response.
type GetLeaderboardResult struct {
	// JourneyType echoes the requested board.
	JourneyType string `json:"journeyType"`

	// Entries are the board rows, best streak first.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// GeneratedAt is when the response was assembled.
	GeneratedAt time.Time `json:"generatedAt"`
}

// GetLeaderboardHandler handles leaderboard queries.
type GetLeaderboardHandler struct {
	leaderboard *engagement.LeaderboardIndex
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(leaderboard *engagement.LeaderboardIndex) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{leaderboard: leaderboard}
}

// Handle executes the leaderboard query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	jt, _ := journey.ParseType(q.JourneyType)

	entries, err := h.leaderboard.Top(ctx, jt, q.Limit)
	if err != nil {
		return nil, err
	}

	result := &GetLeaderboardResult{
		JourneyType: jt.String(),
		Entries:     make([]LeaderboardEntryDTO, 0, len(entries)),
		GeneratedAt: time.Now().UTC(),
	}
	for i, e := range entries {
		result.Entries = append(result.Entries, LeaderboardEntryDTO{
			Rank:   i + 1,
			UserID: e.UserID,
			Streak: e.Streak,
		})
	}

	return result, nil
}
