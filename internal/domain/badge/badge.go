// Package badge holds the static registry of achievement definitions and
// the pure progress strategies that score them. Definitions are immutable
// and compile-time initialized; all per-user state lives in grant records
// and trackers.
package badge

// Rarity is the ordered reward tier of a badge.
type Rarity int

const (
	RarityNormal Rarity = iota
	RarityRare
	RarityAmazing
	RarityGreen
)

// String returns the rarity name.
func (r Rarity) String() string {
	switch r {
	case RarityNormal:
		return "normal"
	case RarityRare:
		return "rare"
	case RarityAmazing:
		return "amazing"
	case RarityGreen:
		return "green"
	default:
		return "unknown"
	}
}

// IsValid reports whether the rarity is a defined tier.
func (r Rarity) IsValid() bool {
	return r >= RarityNormal && r <= RarityGreen
}

// PointReward returns the fixed impact-points reward conferred on grant.
func (r Rarity) PointReward() int64 {
	switch r {
	case RarityNormal:
		return 10
	case RarityRare:
		return 25
	case RarityAmazing:
		return 50
	case RarityGreen:
		return 100
	default:
		return 0
	}
}

// Tracker ids referenced by badge definitions.
const (
	TrackerArticlesRead   = "articles_read"
	TrackerContentFormats = "content_formats"
	TrackerResponsesGiven = "responses_given"

	// TrackerPointsEarned accumulates points credited by badge grants.
	// Granting a badge bound to it must not feed it again (loop guard).
	TrackerPointsEarned = "points_earned"
)

// Badge is a static, immutable achievement definition.
type Badge struct {
	ID          string
	Name        string
	Description string
	Rarity      Rarity
	// TrackerID binds the badge to a tracker; empty when progress is
	// computed from context alone or the badge is explicit-only.
	TrackerID string
	// Strategy scores progress in [0,1]; nil makes the badge binary and
	// grantable only by an explicit authority action.
	Strategy *Strategy
}

// HasProgress reports whether the badge can be auto-granted from progress.
func (b Badge) HasProgress() bool {
	return b.Strategy != nil
}

var registry = []Badge{
	{
		ID:          "well_read",
		Name:        "Well Read",
		Description: "Read 10 articles",
		Rarity:      RarityNormal,
		TrackerID:   TrackerArticlesRead,
		Strategy:    &Strategy{Kind: StrategyCappedRamp, Cap: 10},
	},
	{
		ID:          "bookworm",
		Name:        "Bookworm",
		Description: "Read 100 articles",
		Rarity:      RarityRare,
		TrackerID:   TrackerArticlesRead,
		Strategy:    &Strategy{Kind: StrategyCappedRamp, Cap: 100},
	},
	{
		ID:          "format_explorer",
		Name:        "Format Explorer",
		Description: "Engage with both articles and events",
		Rarity:      RarityRare,
		TrackerID:   TrackerContentFormats,
		Strategy:    &Strategy{Kind: StrategySetCombination, Required: []string{"article", "event"}},
	},
	{
		ID:          "responder",
		Name:        "Responder",
		Description: "Leave 25 responses",
		Rarity:      RarityNormal,
		TrackerID:   TrackerResponsesGiven,
		Strategy:    &Strategy{Kind: StrategyCappedRamp, Cap: 25},
	},
	{
		ID:          "anniversary",
		Name:        "Anniversary",
		Description: "A full year on the platform",
		Rarity:      RarityAmazing,
		Strategy:    &Strategy{Kind: StrategyTimeRamp, Days: 365},
	},
	{
		ID:          "impact_100",
		Name:        "Impact 100",
		Description: "Earn 100 impact points from badges",
		Rarity:      RarityAmazing,
		TrackerID:   TrackerPointsEarned,
		Strategy:    &Strategy{Kind: StrategyCappedRamp, Cap: 100},
	},
	{
		ID:          "early_adopter",
		Name:        "Early Adopter",
		Description: "Joined during the closed beta",
		Rarity:      RarityGreen,
		Strategy:    &Strategy{Kind: StrategyConstant, Value: 0},
	},
	{
		ID:          "staff_pick",
		Name:        "Staff Pick",
		Description: "Recognized by the editorial team",
		Rarity:      RarityGreen,
	},
}

// Registry returns all badge definitions.
func Registry() []Badge {
	out := make([]Badge, len(registry))
	copy(out, registry)
	return out
}

// Find returns the definition for a badge id.
func Find(id string) (Badge, bool) {
	for _, b := range registry {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// BoundTo returns every badge bound to the given tracker.
func BoundTo(trackerID string) []Badge {
	if trackerID == "" {
		return nil
	}
	var out []Badge
	for _, b := range registry {
		if b.TrackerID == trackerID {
			out = append(out, b)
		}
	}
	return out
}
