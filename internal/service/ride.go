package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/estimator"
	"rapidride/internal/observability"
	"rapidride/internal/repository"
)

const (
	defaultVehicleType = "Car"
	driverLockTTL      = 10 * time.Second

	// AdminRideLimit caps the admin ride listing.
	AdminRideLimit = 1000
)

// Estimator produces fare and ETA estimates. It never fails.
type Estimator interface {
	Estimate(ctx context.Context, req estimator.Request) estimator.Result
}

// DriverLocker serialises accepts by the same driver across instances.
type DriverLocker interface {
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error)
	ReleaseDriverLock(ctx context.Context, driverID string) error
}

// RideService drives rides through their lifecycle.
type RideService struct {
	rideRepo    repository.RideRepository
	accountRepo repository.AccountRepository
	tx          repository.TxRunner
	estimator   Estimator
	notifier    *NotificationService
	payments    *PaymentService
	locker      DriverLocker
	logger      *slog.Logger
	now         func() time.Time
	otp         func() string
}

// RideServiceDeps holds the collaborators of a RideService.
// Payments and Locker are optional.
type RideServiceDeps struct {
	Rides     repository.RideRepository
	Accounts  repository.AccountRepository
	Tx        repository.TxRunner
	Estimator Estimator
	Notifier  *NotificationService
	Payments  *PaymentService
	Locker    DriverLocker
	Logger    *slog.Logger
}

// NewRideService creates a new RideService.
func NewRideService(deps RideServiceDeps) *RideService {
	return &RideService{
		rideRepo:    deps.Rides,
		accountRepo: deps.Accounts,
		tx:          deps.Tx,
		estimator:   deps.Estimator,
		notifier:    deps.Notifier,
		payments:    deps.Payments,
		locker:      deps.Locker,
		logger:      deps.Logger,
		now:         time.Now,
		otp:         generateOTP,
	}
}

// generateOTP returns a uniformly random code in [1000, 9999].
func generateOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return fmt.Sprintf("%d", 1000+n.Int64())
}

// EstimateRequest contains the parameters for a fare estimate.
type EstimateRequest struct {
	Pickup       estimator.Point
	Destination  estimator.Point
	TrafficLevel float64 // 0 means normal
}

// Estimate prices a prospective trip.
func (s *RideService) Estimate(ctx context.Context, req EstimateRequest) (estimator.Result, error) {
	if !req.Pickup.Valid() {
		return nil, ErrInvalidPickupLocation
	}
	if !req.Destination.Valid() {
		return nil, ErrInvalidDestinationLocation
	}
	if !validTraffic(req.TrafficLevel) {
		return nil, ErrInvalidTrafficLevel
	}

	return s.estimator.Estimate(ctx, estimator.Request{
		Pickup:       req.Pickup,
		Destination:  req.Destination,
		TrafficLevel: req.TrafficLevel,
		At:           s.now(),
	}), nil
}

func validTraffic(level float64) bool {
	return level == 0 || (level >= 0.5 && level <= 3.0)
}

// RequestRideRequest contains the parameters for requesting a ride.
type RequestRideRequest struct {
	Pickup        domain.Place
	Destination   domain.Place
	VehicleType   string  // Optional: defaults to Car
	PaymentMethod string  // Optional: defaults to cash
	TrafficLevel  float64 // Optional: 0 means normal
	ScheduledTime *time.Time
}

// RequestRide prices and persists a new ride, then offers it to matching drivers.
func (s *RideService) RequestRide(ctx context.Context, rider *domain.Account, req RequestRideRequest) (*domain.Ride, error) {
	pickup := estimator.Point{Lat: req.Pickup.Lat, Lng: req.Pickup.Lng}
	destination := estimator.Point{Lat: req.Destination.Lat, Lng: req.Destination.Lng}
	if !pickup.Valid() {
		return nil, ErrInvalidPickupLocation
	}
	if !destination.Valid() {
		return nil, ErrInvalidDestinationLocation
	}

	if !validTraffic(req.TrafficLevel) {
		return nil, ErrInvalidTrafficLevel
	}

	method, err := ValidatePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	vehicleType := req.VehicleType
	if vehicleType == "" {
		vehicleType = defaultVehicleType
	}

	now := s.now()
	est := s.estimator.Estimate(ctx, estimator.Request{
		Pickup:       pickup,
		Destination:  destination,
		TrafficLevel: req.TrafficLevel,
		At:           now,
	}).Estimate()

	ride := &domain.Ride{
		ID:            uuid.New().String(),
		RiderID:       rider.ID,
		Pickup:        req.Pickup.DefaultAddress(),
		Destination:   req.Destination.DefaultAddress(),
		VehicleType:   vehicleType,
		Fare:          estimator.FareFor(vehicleType, est.DistanceKm),
		DistanceKm:    est.DistanceKm,
		DurationMin:   int(math.Round(float64(est.ETASeconds) / 60)),
		Status:        domain.RideStatusRequested,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentStatusPending,
		Scheduled:     req.ScheduledTime != nil,
		ScheduledTime: req.ScheduledTime,
		CreatedAt:     now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}
	observability.RideTransitionsTotal.WithLabelValues(string(ride.Status)).Inc()

	s.logger.Info("ride requested", "ride_id", ride.ID, "rider_id", rider.ID, "vehicle_type", vehicleType, "fare", ride.Fare)

	if s.notifier != nil {
		s.notifier.NotifyRideRequested(ctx, ride, rider)
	}
	return ride, nil
}

// AcceptRideResponse contains the result of accepting a ride.
type AcceptRideResponse struct {
	Ride  *domain.Ride
	Rider *domain.Account
}

// AcceptRide assigns the ride to driver and issues the start code.
func (s *RideService) AcceptRide(ctx context.Context, driver *domain.Account, rideID string) (*AcceptRideResponse, error) {
	if !driver.Role.IsDriver() {
		return nil, ErrForbiddenRole
	}

	if s.locker != nil {
		ok, err := s.locker.AcquireDriverLock(ctx, driver.ID, driverLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("driver lock unavailable, relying on database", "driver_id", driver.ID, "error", err)
		case !ok:
			return nil, ErrDriverHasActiveRide
		default:
			defer func() {
				if err := s.locker.ReleaseDriverLock(context.WithoutCancel(ctx), driver.ID); err != nil {
					s.logger.Warn("failed to release driver lock", "driver_id", driver.ID, "error", err)
				}
			}()
		}
	}

	if _, err := s.rideRepo.GetActiveByDriver(ctx, driver.ID); err == nil {
		return nil, ErrDriverHasActiveRide
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusRequested {
		return nil, ErrInvalidStateTransition
	}

	updated, err := s.rideRepo.Assign(ctx, ride.ID, driver.ID, s.otp(), s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrInvalidStateTransition
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrDriverHasActiveRide
	case err != nil:
		return nil, err
	}
	observability.RideTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()

	rider, err := s.accountRepo.GetByID(ctx, updated.RiderID)
	if err != nil {
		s.logger.Warn("rider lookup failed after accept", "ride_id", updated.ID, "error", err)
		rider = &domain.Account{ID: updated.RiderID}
	}

	s.logger.Info("ride accepted", "ride_id", updated.ID, "driver_id", driver.ID)
	if s.notifier != nil {
		s.notifier.NotifyRideAccepted(ctx, updated, driver)
	}

	return &AcceptRideResponse{Ride: updated, Rider: rider}, nil
}

// MarkArrived records that the assigned driver reached the pickup.
func (s *RideService) MarkArrived(ctx context.Context, driver *domain.Account, rideID string) (*domain.Ride, error) {
	return s.driverTransition(ctx, driver, rideID, "", domain.RideStatusArrived, domain.RideStatusAccepted)
}

// StartRide begins the trip once the rider's code matches.
func (s *RideService) StartRide(ctx context.Context, driver *domain.Account, rideID, otp string) (*domain.Ride, error) {
	return s.driverTransition(ctx, driver, rideID, otp, domain.RideStatusStarted, domain.RideStatusAccepted, domain.RideStatusArrived)
}

func (s *RideService) driverTransition(ctx context.Context, driver *domain.Account, rideID, otp string, to domain.RideStatus, from ...domain.RideStatus) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == "" || ride.DriverID != driver.ID {
		return nil, ErrNotRideParticipant
	}
	if !ride.Status.In(from...) {
		return nil, ErrInvalidStateTransition
	}

	t := repository.Transition{
		RideID:   ride.ID,
		From:     from,
		To:       to,
		DriverID: driver.ID,
		At:       s.now(),
	}
	if to == domain.RideStatusStarted {
		if otp == "" || otp != ride.OTP {
			return nil, ErrInvalidOTP
		}
		t.OTP = otp
	}

	updated, err := s.rideRepo.Transition(ctx, t)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidStateTransition
	}
	if err != nil {
		return nil, err
	}
	observability.RideTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()

	s.logger.Info("ride transitioned", "ride_id", updated.ID, "status", updated.Status)
	if s.notifier != nil {
		s.notifier.NotifyRideStatus(ctx, updated)
	}
	return updated, nil
}

// CompleteRideResponse contains the completed ride and both parties' updated stats.
type CompleteRideResponse struct {
	Ride        *domain.Ride
	DriverStats *domain.Stats
	RiderStats  *domain.Stats
}

// CompleteRide finishes the trip, credits both accounts and settles payment.
func (s *RideService) CompleteRide(ctx context.Context, driver *domain.Account, rideID string) (*CompleteRideResponse, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == "" || ride.DriverID != driver.ID {
		return nil, ErrNotRideParticipant
	}
	if ride.Status != domain.RideStatusStarted {
		return nil, ErrInvalidStateTransition
	}

	resp := &CompleteRideResponse{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error {
		updated, err := rides.Transition(ctx, repository.Transition{
			RideID:   ride.ID,
			From:     []domain.RideStatus{domain.RideStatusStarted},
			To:       domain.RideStatusCompleted,
			DriverID: driver.ID,
			At:       s.now(),
		})
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidStateTransition
		}
		if err != nil {
			return err
		}

		delta := domain.StatsDelta{
			TotalRides:     1,
			CompletedRides: 1,
			Earnings:       updated.Fare,
			Distance:       updated.DistanceKm,
		}
		if resp.DriverStats, err = accounts.IncrementStats(ctx, updated.DriverID, delta); err != nil {
			return fmt.Errorf("credit driver: %w", err)
		}
		if resp.RiderStats, err = accounts.IncrementStats(ctx, updated.RiderID, delta); err != nil {
			return fmt.Errorf("credit rider: %w", err)
		}

		resp.Ride = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitionsTotal.WithLabelValues(string(domain.RideStatusCompleted)).Inc()

	if s.payments != nil {
		if _, err := s.payments.Settle(ctx, resp.Ride); err != nil {
			s.logger.Error("payment settlement failed", "ride_id", resp.Ride.ID, "error", err)
		}
	}

	s.logger.Info("ride completed", "ride_id", resp.Ride.ID, "driver_id", driver.ID, "fare", resp.Ride.Fare)
	if s.notifier != nil {
		s.notifier.NotifyRideStatus(ctx, resp.Ride)
	}
	return resp, nil
}

// CancelRide cancels a ride on behalf of its rider.
func (s *RideService) CancelRide(ctx context.Context, rider *domain.Account, rideID string) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != rider.ID {
		return nil, ErrNotRideParticipant
	}
	if ride.Status.IsTerminal() {
		return nil, ErrInvalidStateTransition
	}

	var cancelled *domain.Ride
	err = s.tx.WithinTx(ctx, func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error {
		updated, err := rides.Transition(ctx, repository.Transition{
			RideID:  ride.ID,
			From:    domain.ActiveRideStatuses,
			To:      domain.RideStatusCancelled,
			RiderID: rider.ID,
			At:      s.now(),
		})
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidStateTransition
		}
		if err != nil {
			return err
		}
		if _, err := accounts.IncrementStats(ctx, rider.ID, domain.StatsDelta{CancelledRides: 1}); err != nil {
			return fmt.Errorf("count cancellation: %w", err)
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitionsTotal.WithLabelValues(string(cancelled.Status)).Inc()

	s.logger.Info("ride cancelled", "ride_id", cancelled.ID, "rider_id", rider.ID)
	if s.notifier != nil {
		s.notifier.NotifyRideCancelled(ctx, cancelled)
	}
	return cancelled, nil
}

// RateRideResponse contains the rated ride and the driver's new average.
type RateRideResponse struct {
	Ride         *domain.Ride
	DriverRating *float64 // nil when the ride had no driver
}

// RateRide stores the rider's rating and folds it into the driver's average.
func (s *RideService) RateRide(ctx context.Context, rider *domain.Account, rideID string, rating int, feedback string) (*RateRideResponse, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.RiderID != rider.ID {
		return nil, ErrNotRideParticipant
	}
	if ride.Status != domain.RideStatusCompleted {
		return nil, ErrInvalidStateTransition
	}
	if ride.Rating != nil {
		return nil, ErrRideAlreadyRated
	}

	resp := &RateRideResponse{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error {
		updated, err := rides.SetRating(ctx, ride.ID, rider.ID, rating, feedback)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRideAlreadyRated
		}
		if err != nil {
			return err
		}
		if updated.DriverID != "" {
			stats, err := accounts.ApplyRating(ctx, updated.DriverID, rating)
			if err != nil {
				return fmt.Errorf("apply driver rating: %w", err)
			}
			resp.DriverRating = &stats.Rating
		}
		resp.Ride = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride rated", "ride_id", resp.Ride.ID, "rating", rating)
	return resp, nil
}

// RideDetails is a ride with its participants.
type RideDetails struct {
	Ride   *domain.Ride
	Driver *domain.Account // nil while requested
	Rider  *domain.Account
}

// GetRide returns a ride visible to caller. Rides the caller does not
// take part in are reported as not found.
func (s *RideService) GetRide(ctx context.Context, caller *domain.Account, rideID string) (*RideDetails, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsParticipant(caller.ID) && caller.Role != domain.RoleAdmin {
		return nil, ErrRideNotFound
	}
	return s.withParticipants(ctx, ride)
}

// CurrentRide returns the caller's ride in progress, as rider or as driver.
func (s *RideService) CurrentRide(ctx context.Context, caller *domain.Account) (*RideDetails, error) {
	var ride *domain.Ride
	var err error
	if caller.Role.IsDriver() {
		ride, err = s.rideRepo.GetActiveByDriver(ctx, caller.ID)
	} else {
		ride, err = s.rideRepo.GetActiveByRider(ctx, caller.ID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveRide
	}
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, ride)
}

// LatestStatus returns the caller's most recent ride, or nil when there is none.
func (s *RideService) LatestStatus(ctx context.Context, rider *domain.Account) (*RideDetails, error) {
	ride, err := s.rideRepo.GetLatestByRider(ctx, rider.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.withParticipants(ctx, ride)
}

func (s *RideService) withParticipants(ctx context.Context, ride *domain.Ride) (*RideDetails, error) {
	accounts, err := s.accountRepo.GetByIDs(ctx, ride.Participants())
	if err != nil {
		return nil, err
	}
	return &RideDetails{
		Ride:   ride,
		Driver: accounts[ride.DriverID],
		Rider:  accounts[ride.RiderID],
	}, nil
}

// RideHistory is one page of a rider's rides.
type RideHistory struct {
	Rides   []*domain.Ride
	Total   int
	HasMore bool
}

// History returns a page of the rider's rides, newest first.
func (s *RideService) History(ctx context.Context, rider *domain.Account, limit, skip int) (*RideHistory, error) {
	if limit <= 0 {
		limit = 10
	}
	if skip < 0 {
		skip = 0
	}

	rides, err := s.rideRepo.ListByRider(ctx, rider.ID, limit, skip)
	if err != nil {
		return nil, err
	}
	total, err := s.rideRepo.CountByRider(ctx, rider.ID)
	if err != nil {
		return nil, err
	}

	return &RideHistory{
		Rides:   rides,
		Total:   total,
		HasMore: skip+len(rides) < total,
	}, nil
}

// RiderStats summarises a rider's completed rides.
func (s *RideService) RiderStats(ctx context.Context, rider *domain.Account) (*repository.RiderSummary, error) {
	return s.rideRepo.SummarizeRider(ctx, rider.ID)
}

// ClearActive cancels every ride the rider still has in progress.
func (s *RideService) ClearActive(ctx context.Context, rider *domain.Account) ([]*domain.Ride, error) {
	var cleared []*domain.Ride
	err := s.tx.WithinTx(ctx, func(ctx context.Context, rides repository.RideRepository, accounts repository.AccountRepository) error {
		cancelled, err := rides.CancelActiveByRider(ctx, rider.ID, s.now())
		if err != nil {
			return err
		}
		if len(cancelled) > 0 {
			if _, err := accounts.IncrementStats(ctx, rider.ID, domain.StatsDelta{CancelledRides: len(cancelled)}); err != nil {
				return fmt.Errorf("count cancellations: %w", err)
			}
		}
		cleared = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cleared) == 0 {
		return cleared, nil
	}

	observability.RideTransitionsTotal.WithLabelValues(string(domain.RideStatusCancelled)).Add(float64(len(cleared)))
	s.logger.Info("cleared active rides", "rider_id", rider.ID, "count", len(cleared))
	if s.notifier != nil {
		for _, ride := range cleared {
			s.notifier.NotifyRideCancelled(ctx, ride)
		}
	}
	return cleared, nil
}

// ActiveSummary counts rides in each non-terminal status.
type ActiveSummary struct {
	Count    int
	Statuses map[domain.RideStatus]int
}

// AdminActive counts active rides by status.
func (s *RideService) AdminActive(ctx context.Context) (*ActiveSummary, error) {
	counts, err := s.rideRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	summary := &ActiveSummary{Statuses: make(map[domain.RideStatus]int, len(domain.ActiveRideStatuses))}
	for _, st := range domain.ActiveRideStatuses {
		summary.Statuses[st] = counts[st]
		summary.Count += counts[st]
	}
	observability.ActiveRides.Set(float64(summary.Count))
	return summary, nil
}

// AdminAll lists the most recent rides with their participants.
func (s *RideService) AdminAll(ctx context.Context) ([]*RideDetails, error) {
	rides, err := s.rideRepo.ListRecent(ctx, AdminRideLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, 2*len(rides))
	for _, r := range rides {
		ids = append(ids, r.Participants()...)
	}
	accounts, err := s.accountRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*RideDetails, 0, len(rides))
	for _, r := range rides {
		out = append(out, &RideDetails{Ride: r, Driver: accounts[r.DriverID], Rider: accounts[r.RiderID]})
	}
	return out, nil
}

// AdminCount counts all rides.
func (s *RideService) AdminCount(ctx context.Context) (int, error) {
	return s.rideRepo.Count(ctx)
}

func (s *RideService) getRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	return ride, err
}
