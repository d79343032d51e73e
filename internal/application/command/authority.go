// Package command contains write operations (CQRS - Commands).
package command

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
)

// Authority verifies the token presented with administrative commands
// against a bcrypt hash loaded from configuration. Only the hash is ever
// held in memory or configuration; the plaintext token lives with the
// operator.
type Authority struct {
	tokenHash []byte
}

// NewAuthority creates an Authority from a bcrypt token hash. An empty
// hash yields an authority that rejects everything, which disables the
// admin surface.
func NewAuthority(tokenHash string) *Authority {
	return &Authority{tokenHash: []byte(tokenHash)}
}

// Verify checks the presented token. It returns shared.ErrBadAuthorityToken
// on any mismatch, including an unconfigured hash or an empty token.
func (a *Authority) Verify(token string) error {
	if len(a.tokenHash) == 0 || token == "" {
		return shared.ErrBadAuthorityToken
	}
	if err := bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)); err != nil {
		return shared.ErrBadAuthorityToken
	}
	return nil
}

// HashToken produces a bcrypt hash suitable for ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", shared.WrapError("admin", "HashToken", shared.ErrInvalidInput, "hash token", err)
	}
	return string(hash), nil
}
