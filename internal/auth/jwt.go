// Package auth provides JWT issuance and the Echo middleware guarding the
// HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken issues an HS256 access token for the user and returns the
// signed token with its expiry.
func GenerateToken(userID, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	now := time.Now()
	expiresAt := now.Add(expiresIn)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// JWTMiddleware validates bearer tokens on every request the skipper does
// not exempt.
func JWTMiddleware(secret string, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper:    skipper,
		SigningKey: []byte(secret),
	})
}

// UserID extracts the authenticated user id from the request context set by
// the JWT middleware.
func UserID(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return "", ErrInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
