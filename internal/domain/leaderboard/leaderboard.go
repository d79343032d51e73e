// Package leaderboard models the derived top-K ranking of journey streaks.
// A snapshot is a cache artifact: strictly ordered, truncated, and allowed
// to lag the authoritative journey records by its freshness window.
package leaderboard

import (
	"sort"
)

// Rank is a 1-based leaderboard position; 0 means unranked, outside the
// tracked top-K, or zero streak.
type Rank int

// IsUnranked reports whether the rank carries no position.
func (r Rank) IsUnranked() bool {
	return r <= 0
}

// IsTop reports whether the rank falls within the first n positions.
func (r Rank) IsTop(n int) bool {
	return r >= 1 && int(r) <= n
}

// Int returns the rank as a plain integer.
func (r Rank) Int() int {
	return int(r)
}

// Entry is one ranked user.
type Entry struct {
	UserID string `json:"userId"`
	Streak int    `json:"streak"`
}

// Snapshot is a cached top-K ranking for one journey type.
type Snapshot struct {
	Entries     []Entry `json:"entries"`
	GeneratedAt int64   `json:"generatedAt"` // unix milliseconds
}

// Build sorts candidates by streak descending (ties broken by user id for
// a deterministic order), drops zero streaks, and truncates to k.
func Build(candidates []Entry, k int, now int64) Snapshot {
	entries := make([]Entry, 0, len(candidates))
	for _, e := range candidates {
		if e.Streak > 0 {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Streak != entries[j].Streak {
			return entries[i].Streak > entries[j].Streak
		}
		return entries[i].UserID < entries[j].UserID
	})
	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}
	return Snapshot{Entries: entries, GeneratedAt: now}
}

// Truncate returns at most limit entries from the top of the snapshot.
func (s Snapshot) Truncate(limit int) []Entry {
	if limit <= 0 || limit >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:limit]
}

// Full reports whether the snapshot holds its complete capacity of k
// entries, meaning users beyond it may exist.
func (s Snapshot) Full(k int) bool {
	return len(s.Entries) >= k
}

// Lowest returns the last (lowest-streak) entry of the snapshot.
func (s Snapshot) Lowest() (Entry, bool) {
	if len(s.Entries) == 0 {
		return Entry{}, false
	}
	return s.Entries[len(s.Entries)-1], true
}

// Position locates a user in the snapshot by identity match.
func (s Snapshot) Position(userID string) (Rank, bool) {
	for i, e := range s.Entries {
		if e.UserID == userID {
			return Rank(i + 1), true
		}
	}
	return 0, false
}
