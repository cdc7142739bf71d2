// Package identity validates that the caller's credential matches the
// account being inspected.
package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Guard checks the identity claim embedded in a bearer token against a
// target account. It is side-effect free and must run before any
// state-mutating step of an evaluation.
//
// Token signatures are verified at the gateway; here the token is only
// decoded. Where the identity claim lives differs between token issuers
// ("iban", "userId" or "sub"), so all three are accepted in that order
// until the issuing system settles on a single contract.
type Guard struct {
	parser *jwt.Parser
}

// NewGuard creates an identity guard.
func NewGuard() *Guard {
	return &Guard{parser: jwt.NewParser()}
}

// Verify confirms that the token's identity claim equals targetIBAN.
// Returns domain.ErrUnauthorized for an absent/malformed token or a token
// without an identity claim, and domain.ErrForbidden when the identity is
// well-formed but does not match the target.
func (g *Guard) Verify(token string, targetIBAN string) error {
	claim, err := g.Identity(token)
	if err != nil {
		return err
	}
	if claim != targetIBAN {
		return fmt.Errorf("%w: not authorized to access data for account %s", domain.ErrForbidden, targetIBAN)
	}
	return nil
}

// Identity extracts the identity claim from a bearer token.
func (g *Guard) Identity(token string) (string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if raw == "" {
		return "", fmt.Errorf("%w: missing credential", domain.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	if _, _, err := g.parser.ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("%w: invalid token format", domain.ErrUnauthorized)
	}

	for _, key := range []string{"iban", "userId", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w: no identity claim in token", domain.ErrUnauthorized)
}
