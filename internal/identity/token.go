// Package identity verifies bearer tokens and maps them to accounts.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned when a token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity facts carried by a verified token.
type Claims struct {
	UID         string
	Email       string
	PhoneNumber string
}

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []TokenVerifier

// Verify implements TokenVerifier.
func (c ChainVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	err := ErrInvalidToken
	for _, v := range c {
		if v == nil {
			continue
		}
		claims, verr := v.Verify(ctx, token)
		if verr == nil {
			return claims, nil
		}
		err = verr
	}
	return nil, err
}
