package repository

import (
	"context"

	"rapidride/internal/domain"
)

// AccountRepository defines the persistence operations for accounts.
type AccountRepository interface {
	// Create persists a new account.
	// Returns ErrConflict when the identity ref, email or phone is already taken.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByIDForUpdate retrieves an account by ID and locks it until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Account, error)

	// GetByIDs retrieves the accounts that exist among ids, keyed by ID.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Account, error)

	// GetByIdentityRef retrieves an account by its external identity subject.
	GetByIdentityRef(ctx context.Context, ref string) (*domain.Account, error)

	// GetByEmail retrieves an account by email.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByPhone retrieves an account by phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)

	// List retrieves up to limit accounts, newest first.
	List(ctx context.Context, limit int) ([]*domain.Account, error)

	// SetIdentityRef links an external identity subject to an account
	// that does not have one yet. Returns ErrNotFound if the account
	// is missing or already linked to a different subject.
	SetIdentityRef(ctx context.Context, id, ref string) error

	// LinkPhone records a verified phone number. The identity reference is
	// only set when the account has none.
	LinkPhone(ctx context.Context, id, phone, ref string) error

	// UpdateProfile updates the editable profile fields.
	UpdateProfile(ctx context.Context, account *domain.Account) error

	// UpdateLocation stores the account's last known location.
	UpdateLocation(ctx context.Context, id string, loc domain.Location) error

	// UpdateSavedPlaces replaces the saved places list.
	UpdateSavedPlaces(ctx context.Context, id string, places []domain.SavedPlace) error

	// IncrementStats atomically adds delta to the account's stats and returns the result.
	IncrementStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Stats, error)

	// ApplyRating atomically folds a new rating into the running average and returns the result.
	ApplyRating(ctx context.Context, id string, rating int) (*domain.Stats, error)
}
