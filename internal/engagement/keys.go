package engagement

import (
	"strings"

	"github.com/canopy-press/canopy-engagement/internal/domain/identity"
	"github.com/canopy-press/canopy-engagement/internal/domain/journey"
)

// Key namespaces. Every record the engine owns lives under one of these
// prefixes; the legacy sweep enumerates exactly this set.
const (
	journeyKeyPrefix     = "journey:"
	badgeGrantKeyPrefix  = "user:badge:"
	trackerKeyPrefix     = "user:badge_tracker:"
	pointsKeyPrefix      = "user:impact_points:"
	leaderboardKeyPrefix = "leaderboard:"
)

func journeyKey(t journey.Type, userID string) string {
	return journeyKeyPrefix + t.String() + ":" + userID
}

// journeyTypePrefix is the listing prefix for all journeys of one type.
func journeyTypePrefix(t journey.Type) string {
	return journeyKeyPrefix + t.String() + ":"
}

func badgeGrantKey(userID, badgeID string) string {
	return badgeGrantKeyPrefix + userID + ":" + badgeID
}

// badgeGrantUserPrefix is the listing prefix for one user's grants.
func badgeGrantUserPrefix(userID string) string {
	return badgeGrantKeyPrefix + userID + ":"
}

func trackerKey(userID, trackerID string) string {
	return trackerKeyPrefix + userID + ":" + trackerID
}

func pointsKey(userID string) string {
	return pointsKeyPrefix + userID
}

func leaderboardKey(t journey.Type) string {
	return leaderboardKeyPrefix + t.String()
}

// sweepPrefixes are the user-keyed families the legacy sweep walks.
// Leaderboard snapshots are derived data and never migrated.
var sweepPrefixes = []string{
	journeyKeyPrefix,
	badgeGrantKeyPrefix,
	trackerKeyPrefix,
	pointsKeyPrefix,
}

// canonicalKeyFor rewrites the user segment of a known key family to its
// canonical form. It returns the input unchanged when the segment is
// already canonical, and ok=false when the key does not parse as any
// family the engine owns.
func canonicalKeyFor(key string) (string, bool) {
	parts := strings.Split(key, ":")

	switch {
	case strings.HasPrefix(key, journeyKeyPrefix) && len(parts) == 3:
		return rebuildKey(parts, 2), true
	case strings.HasPrefix(key, trackerKeyPrefix) && len(parts) == 4:
		return rebuildKey(parts, 2), true
	case strings.HasPrefix(key, badgeGrantKeyPrefix) && len(parts) == 4:
		return rebuildKey(parts, 2), true
	case strings.HasPrefix(key, pointsKeyPrefix) && len(parts) == 3:
		return rebuildKey(parts, 2), true
	default:
		return key, false
	}
}

func rebuildKey(parts []string, userIdx int) string {
	parts[userIdx] = identity.Normalize(parts[userIdx])
	return strings.Join(parts, ":")
}
