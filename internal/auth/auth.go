// Package auth validates the bearer tokens presented to the board API and the stream service.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const DefaultKeyCacheTTL = 15 * time.Minute

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrBadAuthorization     = errors.New("bad auth header")
)

// Options configures an Auth. A non-empty SharedSecret switches to HS256
// validation for local development and tests; otherwise RS256 tokens are
// validated against JWKS.
type Options struct {
	JWKS         *keyfunc.JWKS
	Audience     string
	Issuer       string
	SharedSecret []byte
	KeyCacheTTL  time.Duration
}

// Auth validates incoming JWT tokens.
type Auth struct {
	opts   Options
	parser *jwt.Parser

	keyCache sync.Map
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// New creates an Auth.
func New(opts Options) *Auth {
	a := &Auth{opts: opts}
	if len(opts.SharedSecret) > 0 {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// UserIDFromRequest authenticates a request by its Authorization header,
// falling back to the token query parameter browsers use for WebSocket upgrades.
func (a *Auth) UserIDFromRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			h = "Bearer " + token
		}
	}
	return a.UserIDFromAuthHeader(h)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := BearerToken(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken validates a raw JWT and returns its subject.
func (a *Auth) UserIDFromToken(token string) (string, error) {
	if token == "" {
		return "", ErrBadAuthorization
	}
	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if len(a.opts.SharedSecret) > 0 {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.opts.SharedSecret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if a.opts.Audience != "" && !claims.VerifyAudience(a.opts.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.opts.Issuer != "" && !claims.VerifyIssuer(a.opts.Issuer, false) {
		return "", errors.New("invalid issuer")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.opts.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}
	ttl := a.opts.KeyCacheTTL
	kid, _ := token.Header["kid"].(string)
	if kid != "" && ttl > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}
	key, err := a.opts.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" && ttl > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(ttl)})
	}
	return key, nil
}

// BearerToken returns the JWT carried by a "Bearer <token>" header value.
func BearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingAuthorization
	}
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || token == "" {
		return "", ErrBadAuthorization
	}
	if strings.Count(token, ".") != 2 {
		return "", ErrBadAuthorization
	}
	return token, nil
}
