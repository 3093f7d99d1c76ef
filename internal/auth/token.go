package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// LocalSecret returns the shared secret of the HS256 local modes, if any.
func LocalSecret() []byte {
	if s := os.Getenv("LOCAL_AUTH_SHARED_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte(os.Getenv("TEST_JWT_SECRET"))
}

// SignLocal issues an HS256 token for userID accepted by the local auth modes.
func SignLocal(secret []byte, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("LOCAL_AUTH_SHARED_SECRET or TEST_JWT_SECRET must be set")
	}
	if userID == "" {
		return "", errors.New("user id required")
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString(secret)
}
