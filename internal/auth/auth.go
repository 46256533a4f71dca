// Package auth implements the Authentication Gate.
//
// Each peer role has its own shared secret. A secret may be configured in
// plain text or as a bcrypt hash ("$2a$", "$2b$" or "$2y$" prefix).
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rickgao/phone-relay/internal/peer"
)

// Errors
var (
	ErrUnknownClientType = errors.New("unknown client type")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Reply texts carried in auth_result frames.
const (
	MessageSuccess     = "Authentication successful"
	MessageNotRequired = "Authentication not required"
	MessageFailure     = "Invalid password"
	MessageUnknownType = "Unknown client type"
)

// Gate validates role claims.
type Gate struct {
	strict  bool
	secrets map[peer.Role]string
}

// NewGate creates a Gate. When strict is false every well-formed claim is
// accepted and the secrets are ignored.
func NewGate(strict bool, websiteSecret, termuxSecret string) *Gate {
	return &Gate{
		strict: strict,
		secrets: map[peer.Role]string{
			peer.RoleController: websiteSecret,
			peer.RoleSource:     termuxSecret,
		},
	}
}

// Strict reports whether credentials are required.
func (g *Gate) Strict() bool {
	return g.strict
}

// Verify checks a credential for the claimed clientType and returns the role
// it grants. Only the secret of the claimed role is consulted, so a
// credential for one role never validates for the other.
func (g *Gate) Verify(clientType, credential string) (peer.Role, error) {
	role, ok := peer.RoleFromClientType(clientType)
	if !ok {
		return peer.RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownClientType, clientType)
	}
	if !g.strict {
		return role, nil
	}

	secret := g.secrets[role]
	if secret == "" || !matchSecret(secret, credential) {
		return peer.RoleUnknown, ErrInvalidCredential
	}
	return role, nil
}

// HashSecret returns a bcrypt hash suitable for the auth secrets in config.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// IsHashed reports whether a configured secret is a bcrypt hash.
func IsHashed(secret string) bool {
	return strings.HasPrefix(secret, "$2a$") ||
		strings.HasPrefix(secret, "$2b$") ||
		strings.HasPrefix(secret, "$2y$")
}

func matchSecret(secret, credential string) bool {
	if IsHashed(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(credential)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(credential)) == 1
}
