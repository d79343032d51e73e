// Package points models the impact points balance, the platform's scalar
// reward currency. Balances are pure additive bookkeeping: never computed
// from other entities, mutated only by signed deltas, never negative.
package points

import (
	"strconv"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
)

// Balance is a non-negative impact points balance.
type Balance int64

// IsValid reports whether the balance respects the non-negative invariant.
func (b Balance) IsValid() bool {
	return b >= 0
}

// Int64 returns the balance as a plain integer.
func (b Balance) Int64() int64 {
	return int64(b)
}

// Apply returns the balance after a signed delta, floored at zero.
func (b Balance) Apply(delta int64) Balance {
	next := int64(b) + delta
	if next < 0 {
		next = 0
	}
	return Balance(next)
}

// Format renders the balance in its stored decimal-string form.
func (b Balance) Format() string {
	return strconv.FormatInt(int64(b), 10)
}

// Parse reads a stored decimal-string balance. Empty input is a zero
// balance; anything unparseable or negative is malformed.
func Parse(s string) (Balance, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, shared.WrapError("points", "Parse", shared.ErrInvalidFormat, "malformed points amount", err)
	}
	if n < 0 {
		return 0, shared.ErrMalformedAmount
	}
	return Balance(n), nil
}
