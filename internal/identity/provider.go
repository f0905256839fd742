package identity

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

type providerClaims struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	jwt.RegisteredClaims
}

// ProviderVerifier checks ID tokens minted by the external identity provider.
// Tokens are RS256 signed; when no public key is configured it accepts
// HS256 tokens signed with the shared secret, for local development.
type ProviderVerifier struct {
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
	audience  string
}

// NewProviderVerifier creates a verifier for RS256 tokens.
func NewProviderVerifier(publicKey *rsa.PublicKey, issuer, audience string) *ProviderVerifier {
	return &ProviderVerifier{publicKey: publicKey, issuer: issuer, audience: audience}
}

// NewDevProviderVerifier creates a verifier for HS256 tokens signed with secret.
func NewDevProviderVerifier(secret, issuer, audience string) *ProviderVerifier {
	return &ProviderVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// LoadPublicKey reads a PEM encoded RSA public key or certificate.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// Verify implements TokenVerifier.
func (v *ProviderVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var keyFunc jwt.Keyfunc
	if v.publicKey != nil {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return v.publicKey, nil }
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return v.secret, nil }
	}

	var pc providerClaims
	if _, err := jwt.ParseWithClaims(token, &pc, keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if pc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Claims{UID: pc.Subject, Email: pc.Email, PhoneNumber: pc.PhoneNumber}, nil
}
