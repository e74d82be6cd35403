package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateClaims signs the OAuth state parameter so the callback can recover
// which user started the flow without server-side state.
type stateClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	Service string `json:"svc"`
}

// StateTTL bounds how long an OAuth consent round-trip may take.
const StateTTL = 10 * time.Minute

// SignState produces the signed state token for an OAuth authorization
// redirect.
func SignState(userID, service, secret string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
		},
		UserID:  userID,
		Service: service,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseState validates a callback state token and returns the user and
// service it was issued for.
func ParseState(state, secret string) (userID, service string, err error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" || claims.Service == "" {
		return "", "", ErrInvalidToken
	}
	return claims.UserID, claims.Service, nil
}
