package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rapidride/internal/domain"
)

const sessionIssuer = "rapidride"

type sessionClaims struct {
	AccountID   string `json:"user_id"`
	Role        string `json:"role"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer mints and verifies the service's own HS256 session tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a new SessionIssuer.
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a session token for an account linked to an identity subject.
func (s *SessionIssuer) Issue(account *domain.Account) (string, error) {
	if account.IdentityRef == "" {
		return "", errors.New("account has no identity ref")
	}

	now := s.now()
	claims := sessionClaims{
		AccountID:   account.ID,
		Role:        string(account.Role),
		Email:       account.Email,
		PhoneNumber: account.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.IdentityRef,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify implements TokenVerifier.
func (s *SessionIssuer) Verify(_ context.Context, token string) (*Claims, error) {
	var sc sessionClaims
	_, err := jwt.ParseWithClaims(token, &sc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &Claims{UID: sc.Subject, Email: sc.Email, PhoneNumber: sc.PhoneNumber}, nil
}
