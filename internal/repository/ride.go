package repository

import (
	"context"
	"time"

	"rapidride/internal/domain"
)

// Transition describes a conditional status change.
// The update applies only when the ride's current status is one of From
// and every non-empty guard matches.
type Transition struct {
	RideID   string
	From     []domain.RideStatus
	To       domain.RideStatus
	RiderID  string // guard: ride belongs to this rider
	DriverID string // guard: ride is assigned to this driver
	OTP      string // guard: stored OTP equals this value
	At       time.Time
}

// RideActivity selects the rides of one account created since a point in time.
type RideActivity struct {
	AccountID string
	AsDriver  bool
	Since     time.Time
}

// RiderSummary aggregates a rider's completed rides.
type RiderSummary struct {
	CompletedRides int
	TotalSpent     float64
	AverageRating  *float64
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// Assign moves a requested ride to accepted for driverID with the given OTP.
	// Returns ErrNotFound if the ride is not in requested state and
	// ErrConflict if the driver already holds an active ride.
	Assign(ctx context.Context, rideID, driverID, otp string, at time.Time) (*domain.Ride, error)

	// Transition applies a conditional status change.
	// Returns ErrNotFound when no ride matched the conditions.
	Transition(ctx context.Context, t Transition) (*domain.Ride, error)

	// SetRating stores a rating on a completed, unrated ride owned by riderID.
	// Returns ErrNotFound when no ride matched the conditions.
	SetRating(ctx context.Context, rideID, riderID string, rating int, feedback string) (*domain.Ride, error)

	// SetPayment records the payment outcome of a ride.
	SetPayment(ctx context.Context, rideID string, status domain.PaymentStatus, paymentID string) error

	// GetActiveByRider retrieves the rider's most recent non-terminal ride.
	GetActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error)

	// GetActiveByDriver retrieves the ride the driver is committed to.
	GetActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error)

	// GetLatestByRider retrieves the rider's most recent ride in any status.
	GetLatestByRider(ctx context.Context, riderID string) (*domain.Ride, error)

	// ListByRider retrieves a page of the rider's rides, newest first.
	ListByRider(ctx context.Context, riderID string, limit, skip int) ([]*domain.Ride, error)

	// CountByRider counts all of the rider's rides.
	CountByRider(ctx context.Context, riderID string) (int, error)

	// ListActivity retrieves rides created since a given time for a rider or driver.
	ListActivity(ctx context.Context, q RideActivity) ([]*domain.Ride, error)

	// SummarizeRider aggregates the rider's completed rides.
	SummarizeRider(ctx context.Context, riderID string) (*RiderSummary, error)

	// CancelActiveByRider cancels every non-terminal ride of the rider and returns them.
	CancelActiveByRider(ctx context.Context, riderID string, at time.Time) ([]*domain.Ride, error)

	// ListRecent retrieves up to limit rides, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error)

	// CountByStatus counts rides per status.
	CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error)

	// Count counts all rides.
	Count(ctx context.Context) (int, error)
}

// TxRunner runs fn inside a single database transaction with
// transaction-scoped repositories. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, rides RideRepository, accounts AccountRepository) error) error
}
