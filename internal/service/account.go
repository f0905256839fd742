package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/identity"
	"rapidride/internal/repository"
)

// AdminUserLimit caps the admin user listing.
const AdminUserLimit = 1000

// ClaimsVerifier verifies identity-provider tokens.
type ClaimsVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

// SessionMinter issues the service's own session tokens.
type SessionMinter interface {
	Issue(account *domain.Account) (string, error)
}

// AccountResolver maps verified claims to an existing account.
type AccountResolver interface {
	Resolve(ctx context.Context, claims *identity.Claims) (*domain.Account, error)
}

// AccountService handles sign-in, profiles, statistics and saved places.
type AccountService struct {
	accountRepo repository.AccountRepository
	rideRepo    repository.RideRepository
	tx          repository.TxRunner
	verifier    ClaimsVerifier
	resolver    AccountResolver
	sessions    SessionMinter
	logger      *slog.Logger
	now         func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	accountRepo repository.AccountRepository,
	rideRepo repository.RideRepository,
	tx repository.TxRunner,
	verifier ClaimsVerifier,
	resolver AccountResolver,
	sessions SessionMinter,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		rideRepo:    rideRepo,
		tx:          tx,
		verifier:    verifier,
		resolver:    resolver,
		sessions:    sessions,
		logger:      logger,
		now:         time.Now,
	}
}

// LoginResponse contains the result of a sign-in.
type LoginResponse struct {
	Account   *domain.Account
	IsNewUser bool
	Token     string
}

// Login verifies an identity-provider token, finds or creates the matching
// account and issues a session token for it.
func (s *AccountService) Login(ctx context.Context, idToken string) (*LoginResponse, error) {
	if idToken == "" {
		return nil, identity.ErrInvalidToken
	}

	claims, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	account, err := s.resolver.Resolve(ctx, claims)
	if errors.Is(err, identity.ErrNoAccount) {
		account, err = s.createFromClaims(ctx, claims)
	}
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &LoginResponse{
		Account:   account,
		IsNewUser: !account.ProfileComplete(),
		Token:     token,
	}, nil
}

func (s *AccountService) createFromClaims(ctx context.Context, claims *identity.Claims) (*domain.Account, error) {
	account := &domain.Account{
		ID:            uuid.New().String(),
		IdentityRef:   claims.UID,
		Email:         claims.Email,
		Phone:         claims.PhoneNumber,
		EmailVerified: claims.Email != "",
		PhoneVerified: claims.PhoneNumber != "",
		SavedPlaces:   []domain.SavedPlace{},
		CreatedAt:     s.now(),
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Another sign-in for the same identity won the insert.
			return s.resolver.Resolve(ctx, claims)
		}
		return nil, err
	}

	s.logger.Info("account created", "account_id", account.ID)
	return account, nil
}

// ProfileRequest contains editable profile fields. Empty fields are left unchanged,
// except that CompleteProfile requires Name and Role.
type ProfileRequest struct {
	Name    string
	Phone   string
	Role    domain.Role
	Gender  string
	Avatar  string
	Vehicle *domain.Vehicle
	License string
}

// CompleteProfile sets the fields a new account must provide before riding or driving.
func (s *AccountService) CompleteProfile(ctx context.Context, account *domain.Account, req ProfileRequest) (*domain.Account, error) {
	if req.Name == "" {
		return nil, ErrIncompleteProfile
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}

	updated := *account
	updated.Name = req.Name
	updated.Role = req.Role
	if req.Phone != "" {
		updated.Phone = req.Phone
	}
	updated.Gender = req.Gender
	updated.Avatar = req.Avatar
	updated.Vehicle = req.Vehicle
	updated.License = req.License

	if err := s.save(ctx, &updated); err != nil {
		return nil, err
	}
	s.logger.Info("profile completed", "account_id", updated.ID, "role", updated.Role)
	return &updated, nil
}

// UpdateProfile changes the non-empty fields of req. Role and phone are not editable here.
func (s *AccountService) UpdateProfile(ctx context.Context, account *domain.Account, req ProfileRequest) (*domain.Account, error) {
	updated := *account
	if req.Name != "" {
		updated.Name = req.Name
	}
	if req.Gender != "" {
		updated.Gender = req.Gender
	}
	if req.Avatar != "" {
		updated.Avatar = req.Avatar
	}
	if req.Vehicle != nil {
		updated.Vehicle = req.Vehicle
	}
	if req.License != "" {
		updated.License = req.License
	}

	if err := s.save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// LinkPhone verifies a phone sign-in token and attaches its number to the account.
func (s *AccountService) LinkPhone(ctx context.Context, account *domain.Account, phoneIDToken string) (*domain.Account, error) {
	if phoneIDToken == "" {
		return nil, identity.ErrInvalidToken
	}
	claims, err := s.verifier.Verify(ctx, phoneIDToken)
	if err != nil {
		return nil, err
	}
	if claims.PhoneNumber == "" {
		return nil, ErrNotPhoneToken
	}

	err = s.accountRepo.LinkPhone(ctx, account.ID, claims.PhoneNumber, claims.UID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("phone linked", "account_id", account.ID)
	return s.Me(ctx, account.ID)
}

// UpdateAvatar replaces the account's avatar.
func (s *AccountService) UpdateAvatar(ctx context.Context, account *domain.Account, avatar string) (*domain.Account, error) {
	if avatar == "" {
		return nil, ErrAvatarRequired
	}
	updated := *account
	updated.Avatar = avatar
	if err := s.save(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *AccountService) save(ctx context.Context, account *domain.Account) error {
	err := s.accountRepo.UpdateProfile(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

// Me reloads the account so that stats and places are current.
func (s *AccountService) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

// TodayStats summarises the rides an account took part in since local midnight.
type TodayStats struct {
	TotalRides     int     `json:"totalRides"`
	CompletedRides int     `json:"completedRides"`
	CancelledRides int     `json:"cancelledRides"`
	Earnings       float64 `json:"earnings"`
	Distance       float64 `json:"distance"`
}

// Today returns the caller's statistics for the current day, as driver or as rider.
func (s *AccountService) Today(ctx context.Context, account *domain.Account) (*TodayStats, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	rides, err := s.rideRepo.ListActivity(ctx, repository.RideActivity{
		AccountID: account.ID,
		AsDriver:  account.Role.IsDriver(),
		Since:     midnight,
	})
	if err != nil {
		return nil, err
	}

	stats := &TodayStats{TotalRides: len(rides)}
	for _, r := range rides {
		switch r.Status {
		case domain.RideStatusCompleted:
			stats.CompletedRides++
			stats.Earnings += r.Fare
			stats.Distance += r.DistanceKm
		case domain.RideStatusCancelled:
			stats.CancelledRides++
		}
	}
	return stats, nil
}

// AddPlaceRequest contains the parameters for saving a place.
type AddPlaceRequest struct {
	Name    string
	Address string
	Lat     float64
	Lng     float64
}

// AddPlace prepends a place to the account's saved places. It reports false,
// and leaves the list unchanged, when a place at the same spot is already saved.
func (s *AccountService) AddPlace(ctx context.Context, accountID string, req AddPlaceRequest) ([]domain.SavedPlace, bool, error) {
	if req.Name == "" || !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return nil, false, ErrInvalidPlace
	}

	var (
		places []domain.SavedPlace
		added  bool
	)
	err := s.editPlaces(ctx, accountID, func(current []domain.SavedPlace) ([]domain.SavedPlace, bool) {
		places, added = domain.AddSavedPlace(current, domain.SavedPlace{
			Name:    req.Name,
			Address: req.Address,
			Lat:     req.Lat,
			Lng:     req.Lng,
			SavedAt: s.now(),
		})
		return places, added
	})
	if err != nil {
		return nil, false, err
	}
	return places, added, nil
}

// DeletePlaceRequest selects places to delete, by index or by coordinates.
type DeletePlaceRequest struct {
	Index *int
	Lat   *float64
	Lng   *float64
}

// DeletePlace removes saved places and returns what remains.
func (s *AccountService) DeletePlace(ctx context.Context, accountID string, req DeletePlaceRequest) ([]domain.SavedPlace, error) {
	var remove func([]domain.SavedPlace) []domain.SavedPlace
	switch {
	case req.Index != nil:
		remove = func(current []domain.SavedPlace) []domain.SavedPlace {
			return domain.RemoveSavedPlaceAt(current, *req.Index)
		}
	case req.Lat != nil && req.Lng != nil:
		remove = func(current []domain.SavedPlace) []domain.SavedPlace {
			return domain.RemoveSavedPlacesNear(current, *req.Lat, *req.Lng)
		}
	default:
		return nil, ErrInvalidPlace
	}

	var places []domain.SavedPlace
	err := s.editPlaces(ctx, accountID, func(current []domain.SavedPlace) ([]domain.SavedPlace, bool) {
		places = remove(current)
		return places, true
	})
	if err != nil {
		return nil, err
	}
	return places, nil
}

// editPlaces rewrites the saved places with the account row locked, so
// concurrent edits cannot drop each other's changes. Nothing is written
// when edit reports no change.
func (s *AccountService) editPlaces(ctx context.Context, accountID string, edit func([]domain.SavedPlace) ([]domain.SavedPlace, bool)) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, _ repository.RideRepository, accounts repository.AccountRepository) error {
		account, err := accounts.GetByIDForUpdate(ctx, accountID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		places, changed := edit(account.SavedPlaces)
		if !changed {
			return nil
		}
		return accounts.UpdateSavedPlaces(ctx, accountID, places)
	})
}

// UserDirectory groups accounts for the admin listing.
type UserDirectory struct {
	Riders   []*domain.Account
	Captains []*domain.Account
}

// ListUsers returns riders and drivers, newest first.
func (s *AccountService) ListUsers(ctx context.Context) (*UserDirectory, error) {
	accounts, err := s.accountRepo.List(ctx, AdminUserLimit)
	if err != nil {
		return nil, err
	}

	dir := &UserDirectory{Riders: []*domain.Account{}, Captains: []*domain.Account{}}
	for _, a := range accounts {
		switch {
		case a.Role == domain.RoleRider:
			dir.Riders = append(dir.Riders, a)
		case a.Role.IsDriver():
			dir.Captains = append(dir.Captains, a)
		}
	}
	return dir, nil
}
