package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// claims are the parts of a Supabase access token we read.
type claims struct {
	UserID string `json:"sub"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTVerifier checks HS256 access tokens offline with the project's JWT
// secret. issuer is optional.
func NewJWTVerifier(secret, issuer string) (Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return VerifierFunc(func(_ context.Context, token string) (string, error) {
		var c claims
		if _, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}); err != nil {
			return "", err
		}
		if c.Role == "anon" {
			return "", fmt.Errorf("anonymous role token")
		}
		return c.UserID, nil
	}), nil
}
