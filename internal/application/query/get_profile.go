package query

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/badge"
	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
	"github.com/canopy-press/canopy-engagement/internal/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ENGAGEMENT PROFILE QUERY
// Assembles one user's full engagement picture: held badges, progress
// toward the rest, impact point balance, and journey streaks. Reads only;
// a partial backend failure fails the whole query rather than returning a
// misleading half-profile.
// ══════════════════════════════════════════════════════════════════════════════

// GetEngagementProfileQuery contains the profile request parameters.
type GetEngagementProfileQuery struct {
	// UserID is the user to assemble; legacy zero-padded ids are accepted.
	UserID string

	// Since anchors time-based badge progress (the user's signup time).
	// Zero disables time-ramp progress.
	Since time.Time
}

// Validate checks the query parameters.
func (q GetEngagementProfileQuery) Validate() error {
	if q.UserID == "" {
		return fmt.Errorf("get_profile: %w", shared.ErrEmptyIdentifier)
	}
	return nil
}

// BadgeStatusDTO is one badge's standing for the user.
type BadgeStatusDTO struct {
	// BadgeID identifies the badge.
	BadgeID string `json:"badgeId"`

	// Name is the display name.
	Name string `json:"name"`

	// Rarity is the reward tier name.
	Rarity string `json:"rarity"`

	// Granted is true when the user holds the badge.
	Granted bool `json:"granted"`

	// Progress is in [0,1]; granted badges report 1 regardless of the
	// tracker's current contents.
	Progress float64 `json:"progress"`
}

// JourneyStateDTO is one journey's streak for the user.
type JourneyStateDTO struct {
	// Type is the journey type name.
	Type string `json:"type"`

	// Streak is the current increment count; 0 when absent or expired.
	Streak int `json:"streak"`
}

// GetEngagementProfileResult contains the assembled profile.
type GetEngagementProfileResult struct {
	// UserID echoes the requested user.
	UserID string `json:"userId"`

	// Points is the impact point balance.
	Points int64 `json:"points"`

	// Badges is every registry badge with the user's standing.
	Badges []BadgeStatusDTO `json:"badges"`

	// Journeys is the user's streak per journey type.
	Journeys []JourneyStateDTO `json:"journeys"`
}

// GetEngagementProfileHandler handles profile queries.
type GetEngagementProfileHandler struct {
	engine *engagement.Engine
}

// NewGetEngagementProfileHandler creates a new GetEngagementProfileHandler.
func NewGetEngagementProfileHandler(engine *engagement.Engine) *GetEngagementProfileHandler {
	return &GetEngagementProfileHandler{engine: engine}
}

// Handle executes the profile query.
func (h *GetEngagementProfileHandler) Handle(ctx context.Context, q GetEngagementProfileQuery) (*GetEngagementProfileResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	points, err := h.engine.Points.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	heldIDs, err := h.engine.Badges.Badges(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(heldIDs))
	for _, id := range heldIDs {
		held[id] = struct{}{}
	}

	registry := badge.Registry()
	badges := make([]BadgeStatusDTO, 0, len(registry))
	for _, b := range registry {
		status := BadgeStatusDTO{
			BadgeID: b.ID,
			Name:    b.Name,
			Rarity:  b.Rarity.String(),
		}
		if _, ok := held[b.ID]; ok {
			status.Granted = true
			status.Progress = 1
		} else if b.HasProgress() {
			progress, err := h.engine.Badges.Progress(ctx, q.UserID, b.ID, q.Since)
			if err != nil {
				return nil, err
			}
			status.Progress = progress
		}
		badges = append(badges, status)
	}

	types := journey.Types()
	journeys := make([]JourneyStateDTO, 0, len(types))
	for _, jt := range types {
		state, err := h.engine.Journeys.Get(ctx, jt, q.UserID)
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, JourneyStateDTO{
			Type:   jt.String(),
			Streak: state.Streak,
		})
	}

	return &GetEngagementProfileResult{
		UserID:   q.UserID,
		Points:   points,
		Badges:   badges,
		Journeys: journeys,
	}, nil
}
