package service

import (
	"context"
	"log/slog"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/estimator"
	"rapidride/internal/events"
	"rapidride/internal/observability"
	"rapidride/internal/presence"
)

// Socket event names.
const (
	EventRideNewRequest   = "ride:new-request"
	EventRideAccepted     = "ride:accepted"
	EventRideArrived      = "ride:arrived"
	EventRideStarted      = "ride:started"
	EventRideCompleted    = "ride:completed"
	EventRideCancelled    = "ride:cancelled"
	EventRideStatusUpdate = "ride:status-update"
	EventDriverLocation   = "driver:location-update"
)

// Broadcaster delivers events to the sessions of specific accounts.
type Broadcaster interface {
	SendToAccounts(event string, payload any, accountIDs ...string) int
}

// PlacePayload is a place on the wire.
type PlacePayload struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func placePayload(p domain.Place) PlacePayload {
	return PlacePayload{Address: p.Address, Lat: p.Lat, Lng: p.Lng}
}

// DriverSummary is what a rider sees about the assigned driver.
type DriverSummary struct {
	Name            string           `json:"name"`
	Phone           string           `json:"phone,omitempty"`
	Email           string           `json:"email,omitempty"`
	Vehicle         *domain.Vehicle  `json:"vehicle,omitempty"`
	CurrentLocation *domain.Location `json:"currentLocation"`
}

const defaultDriverName = "RapidRide Driver"

// NewDriverSummary builds the rider-facing view of a driver account.
func NewDriverSummary(driver *domain.Account) *DriverSummary {
	if driver == nil {
		return nil
	}
	name := driver.Name
	if name == "" {
		name = defaultDriverName
	}
	return &DriverSummary{
		Name:            name,
		Phone:           driver.Phone,
		Email:           driver.Email,
		Vehicle:         driver.Vehicle,
		CurrentLocation: driver.CurrentLocation,
	}
}

// RideRequestPayload announces a new ride to matching drivers.
type RideRequestPayload struct {
	RideID      string       `json:"rideId"`
	RiderID     string       `json:"riderId"`
	RiderName   string       `json:"riderName"`
	Pickup      PlacePayload `json:"pickup"`
	Destination PlacePayload `json:"destination"`
	VehicleType string       `json:"vehicleType"`
	Fare        float64      `json:"fare"`
	Distance    float64      `json:"distance"`
	Duration    int          `json:"duration"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// RideAcceptedPayload tells participants who is driving and the start code.
type RideAcceptedPayload struct {
	RideID   string         `json:"rideId"`
	RiderID  string         `json:"riderId"`
	DriverID string         `json:"driverId"`
	Driver   *DriverSummary `json:"driver"`
	OTP      string         `json:"otp"`
}

// RideStatusPayload carries a status change.
type RideStatusPayload struct {
	RideID   string            `json:"rideId"`
	RiderID  string            `json:"riderId,omitempty"`
	DriverID string            `json:"driverId,omitempty"`
	Status   domain.RideStatus `json:"status"`
}

// DriverLocationPayload carries a driver's position.
type DriverLocationPayload struct {
	DriverID string  `json:"driverId"`
	RideID   string  `json:"rideId,omitempty"`
	Location PointJS `json:"location"`
}

// PointJS is a bare coordinate on the wire.
type PointJS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NotificationService routes ride events to the right sessions and
// mirrors them to the event stream.
type NotificationService struct {
	hub       Broadcaster
	registry  presence.Registry
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(hub Broadcaster, registry presence.Registry, publisher events.Publisher, logger *slog.Logger) *NotificationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &NotificationService{
		hub:       hub,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyRideRequested sends the ride to online drivers whose vehicle can serve it.
// It returns the number of drivers reached.
func (s *NotificationService) NotifyRideRequested(ctx context.Context, ride *domain.Ride, rider *domain.Account) int {
	payload := RideRequestPayload{
		RideID:      ride.ID,
		RiderID:     ride.RiderID,
		RiderName:   rider.Name,
		Pickup:      placePayload(ride.Pickup),
		Destination: placePayload(ride.Destination),
		VehicleType: ride.VehicleType,
		Fare:        ride.Fare,
		Distance:    ride.DistanceKm,
		Duration:    ride.DurationMin,
		CreatedAt:   ride.CreatedAt,
	}

	drivers := s.nearestDrivers(ctx, ride)
	sent := 0
	if len(drivers) > 0 {
		sent = s.hub.SendToAccounts(EventRideNewRequest, payload, drivers...)
	}
	s.logger.Info("broadcast ride request", "ride_id", ride.ID, "vehicle_type", ride.VehicleType, "drivers", len(drivers), "sessions", sent)

	s.publish(ctx, EventRideNewRequest, ride, payload)
	return len(drivers)
}

// NotifyRideAccepted tells both participants that the ride was accepted.
func (s *NotificationService) NotifyRideAccepted(ctx context.Context, ride *domain.Ride, driver *domain.Account) {
	payload := RideAcceptedPayload{
		RideID:   ride.ID,
		RiderID:  ride.RiderID,
		DriverID: ride.DriverID,
		Driver:   NewDriverSummary(driver),
		OTP:      ride.OTP,
	}
	s.hub.SendToAccounts(EventRideAccepted, payload, ride.Participants()...)
	s.publish(ctx, EventRideAccepted, ride, RideStatusPayload{RideID: ride.ID, RiderID: ride.RiderID, DriverID: ride.DriverID, Status: ride.Status})
}

// NotifyRideStatus tells both participants about arrived, started or completed.
func (s *NotificationService) NotifyRideStatus(ctx context.Context, ride *domain.Ride) {
	var event string
	switch ride.Status {
	case domain.RideStatusArrived:
		event = EventRideArrived
	case domain.RideStatusStarted:
		event = EventRideStarted
	case domain.RideStatusCompleted:
		event = EventRideCompleted
	default:
		event = EventRideStatusUpdate
	}

	payload := RideStatusPayload{RideID: ride.ID, RiderID: ride.RiderID, DriverID: ride.DriverID, Status: ride.Status}
	s.hub.SendToAccounts(event, payload, ride.Participants()...)
	s.publish(ctx, event, ride, payload)
}

// NotifyRideCancelled tells the assigned driver, then updates participants
// and the drivers who may still hold the request on screen.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride) {
	payload := RideStatusPayload{RideID: ride.ID, RiderID: ride.RiderID, DriverID: ride.DriverID, Status: ride.Status}

	if ride.DriverID != "" {
		s.hub.SendToAccounts(EventRideCancelled, payload, ride.DriverID)
	}

	recipients := append(ride.Participants(), s.matchingDrivers(ctx, ride.VehicleType)...)
	s.hub.SendToAccounts(EventRideStatusUpdate, RideStatusPayload{RideID: ride.ID, Status: ride.Status}, recipients...)

	s.publish(ctx, EventRideCancelled, ride, payload)
}

// NotifyDriverLocation forwards a driver's position to the rider of their active ride.
func (s *NotificationService) NotifyDriverLocation(ctx context.Context, driverID string, loc domain.Location, ride *domain.Ride) {
	if ride == nil {
		return
	}
	payload := DriverLocationPayload{
		DriverID: driverID,
		RideID:   ride.ID,
		Location: PointJS{Lat: loc.Lat, Lng: loc.Lng},
	}
	s.hub.SendToAccounts(EventDriverLocation, payload, ride.RiderID)
}

// nearestDrivers lists matching online drivers, closest to the pickup first.
func (s *NotificationService) nearestDrivers(ctx context.Context, ride *domain.Ride) []string {
	if s.registry == nil {
		return nil
	}
	pickup := domain.Location{Lat: ride.Pickup.Lat, Lng: ride.Pickup.Lng}
	entries, err := s.registry.ListNearestMatching(ctx, estimator.MatchingDriverTypes(ride.VehicleType), pickup)
	if err != nil {
		s.logger.Error("failed to list nearby drivers", "error", err)
		return s.matchingDrivers(ctx, ride.VehicleType)
	}
	return accountIDs(entries)
}

func accountIDs(entries []presence.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountID)
	}
	return ids
}

func (s *NotificationService) matchingDrivers(ctx context.Context, vehicleType string) []string {
	if s.registry == nil {
		return nil
	}
	entries, err := s.registry.ListOnlineMatching(ctx, estimator.MatchingDriverTypes(vehicleType))
	if err != nil {
		s.logger.Error("failed to list online drivers", "error", err)
		return nil
	}
	return accountIDs(entries)
}

func (s *NotificationService) publish(ctx context.Context, name string, ride *domain.Ride, data any) {
	err := s.publisher.Publish(ctx, events.Event{
		Name:       name,
		RideID:     ride.ID,
		AccountID:  ride.RiderID,
		Status:     string(ride.Status),
		OccurredAt: s.now(),
		Data:       data,
	})
	if err != nil {
		observability.EventPublishErrors.Inc()
		s.logger.Warn("failed to publish event", "event", name, "ride_id", ride.ID, "error", err)
	}
}
