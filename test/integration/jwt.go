package integration

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The dashboard never verifies token signatures, so a fixed HMAC key is
// enough for the fake backend.
var signingKey = []byte("shopdesk-integration")

// TestClaims holds the configurable claims of a backend-issued token.
type TestClaims struct {
	SubjectID string
	Email     string
	Role      string
	TTL       time.Duration
}

// GenerateToken creates a signed token as the shop backend would return it
// from /auth/login. A zero TTL means one hour; a negative TTL yields an
// already expired token.
func GenerateToken(claims TestClaims) string {
	ttl := claims.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    claims.SubjectID,
		"email": claims.Email,
		"role":  claims.Role,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}
