package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{q: db}
}

// NewAccountRepositoryWithTx creates a new AccountRepository using a transaction.
func NewAccountRepositoryWithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{q: tx}
}

const accountColumns = `id, identity_ref, email, phone, name, role, gender, avatar, license, vehicle,
	current_lat, current_lng, location_updated_at, email_verified, phone_verified,
	total_rides, completed_rides, cancelled_rides, total_earnings, total_distance,
	rating, total_ratings, saved_places, created_at`

const statsColumns = `total_rides, completed_rides, cancelled_rides, total_earnings, total_distance, rating, total_ratings`

// Create persists a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	vehicle, err := marshalVehicle(account.Vehicle)
	if err != nil {
		return err
	}
	places, err := marshalPlaces(account.SavedPlaces)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (id, identity_ref, email, phone, name, role, gender, avatar, license, vehicle,
			email_verified, phone_verified, saved_places, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.q.ExecContext(ctx, query,
		account.ID,
		nullString(account.IdentityRef),
		nullString(account.Email),
		nullString(account.Phone),
		account.Name,
		string(account.Role),
		account.Gender,
		account.Avatar,
		account.License,
		vehicle,
		account.EmailVerified,
		account.PhoneVerified,
		places,
		account.CreatedAt,
	)
	return translateError(err)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an account by ID, locking its row.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

// GetByIdentityRef retrieves an account by its external identity subject.
func (r *AccountRepository) GetByIdentityRef(ctx context.Context, ref string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE identity_ref = $1`, ref)
}

// GetByEmail retrieves an account by email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// GetByPhone retrieves an account by phone number.
func (r *AccountRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

func (r *AccountRepository) getOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	account, err := scanAccount(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, translateError(err)
	}
	return account, nil
}

// GetByIDs retrieves the accounts that exist among ids, keyed by ID.
func (r *AccountRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Account, error) {
	out := make(map[string]*domain.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[])`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	return out, rows.Err()
}

// List retrieves up to limit accounts, newest first.
func (r *AccountRepository) List(ctx context.Context, limit int) ([]*domain.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SetIdentityRef links an external identity subject to an unlinked account.
func (r *AccountRepository) SetIdentityRef(ctx context.Context, id, ref string) error {
	query := `UPDATE accounts SET identity_ref = $2 WHERE id = $1 AND (identity_ref IS NULL OR identity_ref = $2)`
	result, err := r.q.ExecContext(ctx, query, id, ref)
	if err != nil {
		return translateError(err)
	}
	return requireRow(result)
}

// LinkPhone marks phone as the account's verified number.
func (r *AccountRepository) LinkPhone(ctx context.Context, id, phone, ref string) error {
	query := `
		UPDATE accounts
		SET phone = $2, phone_verified = TRUE, identity_ref = COALESCE(identity_ref, NULLIF($3, ''))
		WHERE id = $1
	`
	result, err := r.q.ExecContext(ctx, query, id, phone, ref)
	if err != nil {
		return translateError(err)
	}
	return requireRow(result)
}

// UpdateProfile updates the editable profile fields.
func (r *AccountRepository) UpdateProfile(ctx context.Context, account *domain.Account) error {
	vehicle, err := marshalVehicle(account.Vehicle)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET name = $2, phone = $3, role = $4, gender = $5, avatar = $6, license = $7, vehicle = $8
		WHERE id = $1
	`
	result, err := r.q.ExecContext(ctx, query,
		account.ID,
		account.Name,
		nullString(account.Phone),
		string(account.Role),
		account.Gender,
		account.Avatar,
		account.License,
		vehicle,
	)
	if err != nil {
		return translateError(err)
	}
	return requireRow(result)
}

// UpdateLocation stores the account's last known location.
func (r *AccountRepository) UpdateLocation(ctx context.Context, id string, loc domain.Location) error {
	query := `UPDATE accounts SET current_lat = $2, current_lng = $3, location_updated_at = $4 WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, id, loc.Lat, loc.Lng, loc.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateSavedPlaces replaces the saved places list.
func (r *AccountRepository) UpdateSavedPlaces(ctx context.Context, id string, places []domain.SavedPlace) error {
	raw, err := marshalPlaces(places)
	if err != nil {
		return err
	}
	result, err := r.q.ExecContext(ctx, `UPDATE accounts SET saved_places = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// IncrementStats atomically adds delta to the account's stats.
func (r *AccountRepository) IncrementStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Stats, error) {
	query := `
		UPDATE accounts
		SET total_rides = total_rides + $2,
		    completed_rides = completed_rides + $3,
		    cancelled_rides = cancelled_rides + $4,
		    total_earnings = total_earnings + $5,
		    total_distance = total_distance + $6
		WHERE id = $1
		RETURNING ` + statsColumns

	return scanStats(r.q.QueryRowContext(ctx, query,
		id, delta.TotalRides, delta.CompletedRides, delta.CancelledRides, delta.Earnings, delta.Distance))
}

// ApplyRating atomically folds a new rating into the running average.
func (r *AccountRepository) ApplyRating(ctx context.Context, id string, rating int) (*domain.Stats, error) {
	query := `
		UPDATE accounts
		SET rating = (rating * total_ratings + $2) / (total_ratings + 1),
		    total_ratings = total_ratings + 1
		WHERE id = $1
		RETURNING ` + statsColumns

	return scanStats(r.q.QueryRowContext(ctx, query, id, rating))
}

func scanStats(row *sql.Row) (*domain.Stats, error) {
	var s domain.Stats
	err := row.Scan(&s.TotalRides, &s.CompletedRides, &s.CancelledRides, &s.TotalEarnings, &s.TotalDistance, &s.Rating, &s.TotalRatings)
	if err != nil {
		return nil, translateError(err)
	}
	return &s, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var identityRef, email, phone sql.NullString
	var role string
	var vehicle []byte
	var lat, lng sql.NullFloat64
	var locAt sql.NullTime
	var places []byte

	err := s.Scan(
		&a.ID, &identityRef, &email, &phone, &a.Name, &role, &a.Gender, &a.Avatar, &a.License, &vehicle,
		&lat, &lng, &locAt, &a.EmailVerified, &a.PhoneVerified,
		&a.Stats.TotalRides, &a.Stats.CompletedRides, &a.Stats.CancelledRides,
		&a.Stats.TotalEarnings, &a.Stats.TotalDistance, &a.Stats.Rating, &a.Stats.TotalRatings,
		&places, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.IdentityRef = identityRef.String
	a.Email = email.String
	a.Phone = phone.String
	a.Role = domain.Role(role)

	if len(vehicle) > 0 {
		var v domain.Vehicle
		if err := json.Unmarshal(vehicle, &v); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
		a.Vehicle = &v
	}
	if lat.Valid && lng.Valid {
		a.CurrentLocation = &domain.Location{Lat: lat.Float64, Lng: lng.Float64, UpdatedAt: locAt.Time}
	}
	if len(places) > 0 {
		if err := json.Unmarshal(places, &a.SavedPlaces); err != nil {
			return nil, fmt.Errorf("decode saved places: %w", err)
		}
	}

	return &a, nil
}

func marshalVehicle(v *domain.Vehicle) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func marshalPlaces(places []domain.SavedPlace) ([]byte, error) {
	if places == nil {
		places = []domain.SavedPlace{}
	}
	return json.Marshal(places)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
