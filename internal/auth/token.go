package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTTL is how long a session token stays valid.
const sessionTTL = 24 * time.Hour

type sessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// newSessionToken signs an HS256 JWT for the account.
func newSessionToken(uid string, key []byte) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fireside",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// parseSessionToken validates a token and returns the account id it carries.
func parseSessionToken(token string, key []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("auth: invalid token")
	}
	return claims.UID, nil
}
