package identity

import (
	"context"
	"errors"
	"log/slog"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// ErrNoAccount is returned when no account may be bound to the claims.
var ErrNoAccount = errors.New("no account for identity")

// Resolver maps verified claims to an account.
type Resolver struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(accounts repository.AccountRepository, logger *slog.Logger) *Resolver {
	return &Resolver{accounts: accounts, logger: logger}
}

// Resolve finds the account for claims: by identity subject first, then
// by email, then by phone. An email or phone match is accepted only when
// the account is unlinked or linked to the same subject; unlinked
// accounts are linked on the way out. A match linked to another subject
// ends the search with ErrNoAccount.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*domain.Account, error) {
	if claims == nil || claims.UID == "" {
		return nil, ErrNoAccount
	}

	account, err := r.accounts.GetByIdentityRef(ctx, claims.UID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	lookups := []struct {
		value string
		get   func(context.Context, string) (*domain.Account, error)
	}{
		{claims.Email, r.accounts.GetByEmail},
		{claims.PhoneNumber, r.accounts.GetByPhone},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		account, err := l.get(ctx, l.value)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		switch account.IdentityRef {
		case claims.UID:
			return account, nil
		case "":
			if err := r.accounts.SetIdentityRef(ctx, account.ID, claims.UID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					// Linked to another subject since the lookup.
					return nil, ErrNoAccount
				}
				return nil, err
			}
			account.IdentityRef = claims.UID
			r.logger.Info("linked identity to account", "account_id", account.ID)
			return account, nil
		default:
			r.logger.Warn("identity ref mismatch", "account_id", account.ID)
			return nil, ErrNoAccount
		}
	}

	return nil, ErrNoAccount
}

// Authenticator verifies a bearer token and resolves its account.
type Authenticator struct {
	verifier TokenVerifier
	resolver *Resolver
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(verifier TokenVerifier, resolver *Resolver) *Authenticator {
	return &Authenticator{verifier: verifier, resolver: resolver}
}

// Authenticate returns the claims and account behind token.
// The account is ErrNoAccount when the identity has not signed up yet.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Claims, *domain.Account, error) {
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	account, err := a.resolver.Resolve(ctx, claims)
	if err != nil {
		return claims, nil, err
	}
	return claims, account, nil
}
