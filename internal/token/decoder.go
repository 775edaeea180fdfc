package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openlms/admin-session/internal/models"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

// Decode parses the claim payload of a backend access token without
// verifying its signature. Verification is the backend's job; the claims
// are read only for UI and routing decisions and must never be treated as
// a security boundary.
func Decode(raw string) (*models.ClaimSet, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", pkgerrors.ErrDecodeFailed)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrDecodeFailed, err)
	}

	cs := &models.ClaimSet{}
	if sub, err := claims.GetSubject(); err == nil {
		cs.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		cs.Issuer = iss
	}
	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		cs.Audience = aud[0]
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cs.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		cs.IssuedAt = iat.Time
	}
	if v, ok := claims["username"].(string); ok {
		cs.Username = v
	}
	if v, ok := claims["email"].(string); ok {
		cs.Email = v
	}
	if v, ok := claims["userRole"].(string); ok {
		cs.Role = models.Role(v)
	}
	return cs, nil
}
