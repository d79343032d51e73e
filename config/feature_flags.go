package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual rollout support.
// Flags gate behavior that is safe to turn off mid-flight: award paths,
// notifications, and the legacy-id migration machinery.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Award Features ===
	FeatureAwardsRankBonus = "awards.rank_bonus" // rank bonus on journey increments
	FeatureAwardsFlat      = "awards.flat"       // flat award on journey increments

	// === Notification Features ===
	FeatureNotifyBadgeEarned = "notify.badge_earned" // notify on earned badges

	// === Migration Features ===
	FeatureMigrationLazy  = "migration.lazy"  // migrate legacy keys on fallback reads
	FeatureMigrationSweep = "migration.sweep" // scheduled bulk sweep
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureAwardsRankBonus] = &Feature{
		Name:           FeatureAwardsRankBonus,
		Description:    "Credit a rank bonus after journey increments",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAwardsFlat] = &Feature{
		Name:           FeatureAwardsFlat,
		Description:    "Credit the flat award after journey increments",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyBadgeEarned] = &Feature{
		Name:           FeatureNotifyBadgeEarned,
		Description:    "Notify users about newly earned badges",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMigrationLazy] = &Feature{
		Name:           FeatureMigrationLazy,
		Description:    "Move legacy records to canonical keys on fallback reads",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMigrationSweep] = &Feature{
		Name:           FeatureMigrationSweep,
		Description:    "Run the scheduled bulk migration sweep",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_AWARDS_RANK_BONUS=false
// Example: FEATURE_MIGRATION_LAZY=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		val := os.Getenv(envKey)
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "awards.rank_bonus" -> "FEATURE_AWARDS_RANK_BONUS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given user. An empty
// userID evaluates the flag globally: on unless fully disabled.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check user overrides first
	if userID != "" {
		if userOverrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := userOverrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && userID != "" {
		return isInRollout(userID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a user is in the rollout percentage.
// Uses consistent hashing so users stay in their bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	bucket := int(h.Sum32() % 100)

	return bucket < percent
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
