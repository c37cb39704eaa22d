package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/pkg/config"
)

func TestVerifierFunc(t *testing.T) {
	v := VerifierFunc(func(_ context.Context, token string) (string, error) {
		if token == "good" {
			return "user-1", nil
		}
		return "", errors.New("rejected")
	})
	ctx := context.Background()

	id, err := v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Authenticated: true}, id)

	id, err = v.Verify(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Anonymous, id)

	_, err = v.Verify(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BearerToken(tt.header), tt.header)
	}
}

func TestFromConfigDisabled(t *testing.T) {
	v, err := FromConfig(config.AuthConfig{})
	require.NoError(t, err)
	id, err := v.Verify(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, id.Authenticated)
}

func signed(t *testing.T, secret string, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	v, err := FromConfig(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "supabase"})
	require.NoError(t, err)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	id, err := v.Verify(ctx, signed(t, "s3cret", jwt.MapClaims{"sub": "user-9", "role": "authenticated", "iss": "supabase", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "user-9", id.UserID)
	assert.True(t, id.Authenticated)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signed(t, "other", jwt.MapClaims{"sub": "u", "iss": "supabase", "exp": exp})},
		{"expired", signed(t, "s3cret", jwt.MapClaims{"sub": "u", "iss": "supabase", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no expiry", signed(t, "s3cret", jwt.MapClaims{"sub": "u", "iss": "supabase"})},
		{"wrong issuer", signed(t, "s3cret", jwt.MapClaims{"sub": "u", "iss": "elsewhere", "exp": exp})},
		{"anon role", signed(t, "s3cret", jwt.MapClaims{"sub": "u", "role": "anon", "iss": "supabase", "exp": exp})},
		{"no subject", signed(t, "s3cret", jwt.MapClaims{"iss": "supabase", "exp": exp})},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
