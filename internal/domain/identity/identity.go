// Package identity canonicalizes user and entity identifiers. A historical
// import kept numeric ids zero-padded to a fixed width; those keys still
// exist in storage and are migrated to the canonical unpadded form lazily
// on read or in bulk by an explicit sweep.
package identity

import (
	"math/big"
	"regexp"
)

var (
	digitsRegex = regexp.MustCompile(`^[0-9]+$`)

	// Five or more leading zeros followed by digits. Ordinary short ids
	// ("0", "007") never match; only the historical padded format does.
	legacyRegex = regexp.MustCompile(`^0{5,}[0-9]+$`)
)

// Normalize returns the canonical form of an identifier. Identifiers that
// are not composed entirely of decimal digits are returned unchanged.
// Numeric identifiers are parsed as arbitrary-precision integers and
// re-rendered without leading zeros, so Normalize(Normalize(x)) == Normalize(x).
func Normalize(id string) string {
	if !digitsRegex.MatchString(id) {
		return id
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return id
	}
	return n.String()
}

// IsLegacyFormat reports whether an identifier matches the historical
// zero-padded numeric format.
func IsLegacyFormat(id string) bool {
	return legacyRegex.MatchString(id)
}

// ID is a user or entity identifier.
type ID string

// IsValid reports whether the identifier is non-empty.
func (id ID) IsValid() bool {
	return id != ""
}

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

// Canonical returns the normalized form of the identifier.
func (id ID) Canonical() ID {
	return ID(Normalize(string(id)))
}

// IsLegacy reports whether the identifier is in the historical padded format.
func (id ID) IsLegacy() bool {
	return IsLegacyFormat(string(id))
}
