package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc"

	"prism-board/internal/env"
)

// FromEnv builds an Auth from LOCAL_AUTH_MODE / AUTH0_TEST_MODE for local
// runs, or from AUTH0_DOMAIN and AUTH0_AUDIENCE with a remote JWKS.
func FromEnv() (*Auth, error) {
	ttl, err := env.Duration("JWKS_CACHE_TTL", DefaultKeyCacheTTL)
	if err != nil {
		return nil, err
	}
	if mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode != "" {
		if mode != "hs256" {
			return nil, fmt.Errorf("unsupported LOCAL_AUTH_MODE value %q", mode)
		}
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			return nil, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		return New(Options{SharedSecret: []byte(secret)}), nil
	}
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			return nil, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return New(Options{SharedSecret: []byte(secret)}), nil
	}

	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domain), keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return New(Options{JWKS: jwks, Audience: audience, Issuer: "https://" + domain + "/", KeyCacheTTL: ttl}), nil
}
