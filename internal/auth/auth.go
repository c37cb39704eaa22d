// Package auth turns bearer tokens into identities. The identity provider is
// an external collaborator; this package only asks it who a token belongs to.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"

	"github.com/thoughtforge/thoughtsync/pkg/config"
)

// ErrInvalidToken is returned for tokens the provider rejects.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is who is calling.
type Identity struct {
	UserID        string
	Authenticated bool
}

// Anonymous is the identity of callers without a token.
var Anonymous = Identity{}

// Verifier resolves a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// VerifierFunc adapts a lookup function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Anonymous, nil
	}
	userID, err := f(ctx, token)
	if err != nil {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if userID == "" {
		return Anonymous, ErrInvalidToken
	}
	return Identity{UserID: userID, Authenticated: true}, nil
}

// Disabled treats every caller as anonymous; used when no provider is
// configured, so every request routes to the local store.
type Disabled struct{}

func (Disabled) Verify(context.Context, string) (Identity, error) { return Anonymous, nil }

// NewSupabaseVerifier asks Supabase Auth for the token's user.
func NewSupabaseVerifier(cfg config.AuthConfig) (Verifier, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	// GetUser takes no context; the request is bounded by the client's
	// own HTTP timeout.
	return VerifierFunc(func(_ context.Context, token string) (string, error) {
		user, err := client.Auth.WithToken(token).GetUser()
		if err != nil {
			return "", err
		}
		return user.ID.String(), nil
	}), nil
}

// FromConfig prefers offline JWT verification, then the Supabase Auth API,
// and falls back to Disabled.
func FromConfig(cfg config.AuthConfig) (Verifier, error) {
	switch {
	case cfg.JWTSecret != "":
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	case cfg.Enabled():
		return NewSupabaseVerifier(cfg)
	default:
		return Disabled{}, nil
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
