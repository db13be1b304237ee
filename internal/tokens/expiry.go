package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Web service tokens are signed by Nintendo with keys this client does not
// have, so the result is informational only.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, errors.Wrap(err, "tokens: parse web service token")
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("tokens: web service token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
