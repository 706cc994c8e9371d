// Package auth resolves the identity of incoming signaling connections.
//
// Identity is the display name other room participants see. Depending on the
// configured mode it comes straight from the request (none), from the request
// plus a shared API key (api_key), or from a verified JWT claim (jwt).
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/callwave/signaling-relay/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("invalid username")
)

const maxUsernameLen = 128

// Resolver authenticates a signaling request and returns the identity to
// attach to the connection.
type Resolver interface {
	IdentityFromRequest(r *http.Request) (string, error)
}

func NewResolver(cfg config.Config) (Resolver, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone:
		return noneResolver{}, nil
	case config.AuthModeAPIKey:
		return apiKeyResolver{expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return jwtResolver{verifier: newJWTVerifier(cfg.JWTSecret)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// usernameFromQuery validates the caller-supplied username query parameter.
func usernameFromQuery(r *http.Request) (string, error) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		return "", fmt.Errorf("%w: missing username", ErrInvalidUsername)
	}
	if len(username) > maxUsernameLen || !utf8.ValidString(username) {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// noneResolver trusts the username query parameter as-is. Suitable only when
// an upstream proxy already authenticated the user.
type noneResolver struct{}

func (noneResolver) IdentityFromRequest(r *http.Request) (string, error) {
	return usernameFromQuery(r)
}

type apiKeyResolver struct {
	expected string
}

func (v apiKeyResolver) IdentityFromRequest(r *http.Request) (string, error) {
	apiKey := r.URL.Query().Get("apiKey")
	if apiKey == "" {
		return "", ErrMissingCredentials
	}
	if err := verifyAPIKey(apiKey, v.expected); err != nil {
		return "", err
	}
	return usernameFromQuery(r)
}

// jwtResolver takes the identity from the verified token's name claim. The
// username query parameter, if present, is ignored.
type jwtResolver struct {
	verifier jwtVerifier
}

func (v jwtResolver) IdentityFromRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", ErrMissingCredentials
	}
	name, err := v.verifier.VerifyAndExtractName(token)
	if err != nil {
		return "", err
	}
	if len(name) > maxUsernameLen {
		return "", ErrInvalidUsername
	}
	return name, nil
}
