// Package journey models per-user activity streaks. A journey is keyed by
// (user, type) and carries an inactivity expiry: the record is stored with
// a TTL, and letting it lapse is observably a reset to zero.
package journey

import (
	"time"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
)

// Type is a journey category from the fixed enumerated set.
type Type string

const (
	TypeArticle  Type = "article"
	TypeActivity Type = "activity"
	TypeEvent    Type = "event"
)

// Types returns all defined journey types.
func Types() []Type {
	return []Type{TypeArticle, TypeActivity, TypeEvent}
}

// IsValid reports whether the type is defined.
func (t Type) IsValid() bool {
	switch t {
	case TypeArticle, TypeActivity, TypeEvent:
		return true
	default:
		return false
	}
}

// String returns the type as a plain string.
func (t Type) String() string {
	return string(t)
}

// ParseType validates a raw journey type string.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", shared.ErrUnknownJourneyType
	}
	return t, nil
}

// DefaultTTL is the inactivity window after which a journey record expires.
const DefaultTTL = 48 * time.Hour

// State is the persisted streak state of one journey. The zero value means
// "no journey": callers read an absent or expired record as {0, 0}.
type State struct {
	Streak    int   `json:"streak"`
	LastWrite int64 `json:"lastWrite"` // unix milliseconds
}

// Exists reports whether the state comes from a stored record.
func (s State) Exists() bool {
	return s.LastWrite != 0
}

// Next returns the state after one increment. Elapsed time is irrelevant:
// expiry is handled entirely by the storage TTL.
func (s State) Next(now int64) State {
	return State{Streak: s.Streak + 1, LastWrite: now}
}

// RankBonus computes the rank-scaled increment bonus, clamp(max-rank, min, max).
// Unranked users (rank <= 0) get nothing.
func RankBonus(rank, min, max int) int {
	if rank <= 0 {
		return 0
	}
	b := max - rank
	if b < min {
		b = min
	}
	if b > max {
		b = max
	}
	return b
}
