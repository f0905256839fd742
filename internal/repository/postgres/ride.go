package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// RideRepository implements repository.RideRepository using PostgreSQL.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new RideRepository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a new RideRepository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, rider_id, driver_id,
	pickup_address, pickup_lat, pickup_lng,
	destination_address, destination_lat, destination_lng,
	vehicle_type, fare, distance_km, duration_min, otp, status,
	payment_method, payment_status, payment_id, rating, feedback,
	scheduled, scheduled_time, created_at, accepted_at, started_at, completed_at, cancelled_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, rider_id, pickup_address, pickup_lat, pickup_lng,
			destination_address, destination_lat, destination_lng,
			vehicle_type, fare, distance_km, duration_min, status,
			payment_method, payment_status, scheduled, scheduled_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	var scheduledTime sql.NullTime
	if ride.ScheduledTime != nil {
		scheduledTime = nullTime(*ride.ScheduledTime)
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		ride.Pickup.Address, ride.Pickup.Lat, ride.Pickup.Lng,
		ride.Destination.Address, ride.Destination.Lat, ride.Destination.Lng,
		ride.VehicleType,
		ride.Fare,
		ride.DistanceKm,
		ride.DurationMin,
		string(ride.Status),
		string(ride.PaymentMethod),
		string(ride.PaymentStatus),
		ride.Scheduled,
		scheduledTime,
		ride.CreatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
}

// Assign moves a requested ride to accepted for driverID.
func (r *RideRepository) Assign(ctx context.Context, rideID, driverID, otp string, at time.Time) (*domain.Ride, error) {
	query := `
		UPDATE rides
		SET driver_id = $2, otp = $3, status = 'accepted', accepted_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'requested'
		RETURNING ` + rideColumns

	return r.getOne(ctx, query, rideID, driverID, otp, at)
}

// Transition applies a conditional status change.
func (r *RideRepository) Transition(ctx context.Context, t repository.Transition) (*domain.Ride, error) {
	set := []string{"status = $2", "updated_at = $3"}
	switch t.To {
	case domain.RideStatusStarted:
		set = append(set, "started_at = $3")
	case domain.RideStatusCompleted:
		set = append(set, "completed_at = $3")
	case domain.RideStatusCancelled:
		set = append(set, "cancelled_at = $3")
	}

	args := []any{t.RideID, string(t.To), t.At, statusArray(t.From)}
	where := []string{"id = $1", "status = ANY($4)"}
	if t.RiderID != "" {
		args = append(args, t.RiderID)
		where = append(where, fmt.Sprintf("rider_id = $%d", len(args)))
	}
	if t.DriverID != "" {
		args = append(args, t.DriverID)
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if t.OTP != "" {
		args = append(args, t.OTP)
		where = append(where, fmt.Sprintf("otp = $%d", len(args)))
	}

	query := `UPDATE rides SET ` + strings.Join(set, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + rideColumns

	return r.getOne(ctx, query, args...)
}

// SetRating stores a rating on a completed, unrated ride owned by riderID.
func (r *RideRepository) SetRating(ctx context.Context, rideID, riderID string, rating int, feedback string) (*domain.Ride, error) {
	query := `
		UPDATE rides
		SET rating = $3, feedback = $4
		WHERE id = $1 AND rider_id = $2 AND status = 'completed' AND rating IS NULL
		RETURNING ` + rideColumns

	return r.getOne(ctx, query, rideID, riderID, rating, feedback)
}

// SetPayment records the payment outcome of a ride.
func (r *RideRepository) SetPayment(ctx context.Context, rideID string, status domain.PaymentStatus, paymentID string) error {
	query := `UPDATE rides SET payment_status = $2, payment_id = COALESCE($3, payment_id) WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, rideID, string(status), nullString(paymentID))
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetActiveByRider retrieves the rider's most recent non-terminal ride.
func (r *RideRepository) GetActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE rider_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, riderID, statusArray(domain.ActiveRideStatuses))
}

// GetActiveByDriver retrieves the ride the driver is committed to.
func (r *RideRepository) GetActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, driverID, statusArray(domain.DriverBusyStatuses))
}

// GetLatestByRider retrieves the rider's most recent ride in any status.
func (r *RideRepository) GetLatestByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, riderID)
}

// ListByRider retrieves a page of the rider's rides, newest first.
func (r *RideRepository) ListByRider(ctx context.Context, riderID string, limit, skip int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE rider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, riderID, limit, skip)
}

// CountByRider counts all of the rider's rides.
func (r *RideRepository) CountByRider(ctx context.Context, riderID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides WHERE rider_id = $1`, riderID).Scan(&n)
	return n, err
}

// ListActivity retrieves rides created since q.Since for a rider or driver.
func (r *RideRepository) ListActivity(ctx context.Context, q repository.RideActivity) ([]*domain.Ride, error) {
	column := "rider_id"
	if q.AsDriver {
		column = "driver_id"
	}
	query := `SELECT ` + rideColumns + ` FROM rides
		WHERE ` + column + ` = $1 AND created_at >= $2
		ORDER BY created_at DESC`
	return r.list(ctx, query, q.AccountID, q.Since)
}

// SummarizeRider aggregates the rider's completed rides.
func (r *RideRepository) SummarizeRider(ctx context.Context, riderID string) (*repository.RiderSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(fare), 0), AVG(rating)::float8
		FROM rides
		WHERE rider_id = $1 AND status = 'completed'
	`
	var s repository.RiderSummary
	var avg sql.NullFloat64
	if err := r.q.QueryRowContext(ctx, query, riderID).Scan(&s.CompletedRides, &s.TotalSpent, &avg); err != nil {
		return nil, err
	}
	if avg.Valid {
		s.AverageRating = &avg.Float64
	}
	return &s, nil
}

// CancelActiveByRider cancels every non-terminal ride of the rider.
func (r *RideRepository) CancelActiveByRider(ctx context.Context, riderID string, at time.Time) ([]*domain.Ride, error) {
	query := `
		UPDATE rides SET status = 'cancelled', cancelled_at = $3, updated_at = $3
		WHERE rider_id = $1 AND status = ANY($2)
		RETURNING ` + rideColumns
	return r.list(ctx, query, riderID, statusArray(domain.ActiveRideStatuses), at)
}

// ListRecent retrieves up to limit rides, newest first.
func (r *RideRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	return r.list(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY created_at DESC LIMIT $1`, limit)
}

// CountByStatus counts rides per status.
func (r *RideRepository) CountByStatus(ctx context.Context) (map[domain.RideStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM rides GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RideStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.RideStatus(status)] = n
	}
	return counts, rows.Err()
}

// Count counts all rides.
func (r *RideRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides`).Scan(&n)
	return n, err
}

func (r *RideRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Ride, error) {
	ride, err := scanRide(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translateError(err)
	}
	return ride, nil
}

func (r *RideRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

func scanRide(s scanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, otp, paymentID sql.NullString
	var status, method, paymentStatus string
	var rating sql.NullInt32
	var scheduledTime, acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := s.Scan(
		&ride.ID, &ride.RiderID, &driverID,
		&ride.Pickup.Address, &ride.Pickup.Lat, &ride.Pickup.Lng,
		&ride.Destination.Address, &ride.Destination.Lat, &ride.Destination.Lng,
		&ride.VehicleType, &ride.Fare, &ride.DistanceKm, &ride.DurationMin, &otp, &status,
		&method, &paymentStatus, &paymentID, &rating, &ride.Feedback,
		&ride.Scheduled, &scheduledTime, &ride.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.OTP = otp.String
	ride.PaymentID = paymentID.String
	ride.Status = domain.RideStatus(status)
	ride.PaymentMethod = domain.PaymentMethod(method)
	ride.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if rating.Valid {
		v := int(rating.Int32)
		ride.Rating = &v
	}
	if scheduledTime.Valid {
		t := scheduledTime.Time
		ride.ScheduledTime = &t
	}
	ride.AcceptedAt = acceptedAt.Time
	ride.StartedAt = startedAt.Time
	ride.CompletedAt = completedAt.Time
	ride.CancelledAt = cancelledAt.Time

	return &ride, nil
}

func statusArray(statuses []domain.RideStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
