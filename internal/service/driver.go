package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/observability"
	"rapidride/internal/presence"
	"rapidride/internal/realtime"
	"rapidride/internal/repository"
)

// Inbound socket event names.
const (
	EventDriverOnline         = "driver:online"
	EventDriverOffline        = "driver:offline"
	EventDriverLocationUpdate = "driver:location"
)

// DriverService handles driver presence and location.
type DriverService struct {
	accountRepo repository.AccountRepository
	rideRepo    repository.RideRepository
	registry    presence.Registry
	notifier    *NotificationService
	logger      *slog.Logger
	now         func() time.Time
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	accountRepo repository.AccountRepository,
	rideRepo repository.RideRepository,
	registry presence.Registry,
	notifier *NotificationService,
	logger *slog.Logger,
) *DriverService {
	return &DriverService{
		accountRepo: accountRepo,
		rideRepo:    rideRepo,
		registry:    registry,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// UpdateLocationRequest contains the parameters for updating driver location.
type UpdateLocationRequest struct {
	DriverID string
	Lat      float64
	Lng      float64
}

// UpdateLocation stores the driver's position, refreshes presence and
// tells the rider of the driver's active ride, if any.
func (s *DriverService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	if req.DriverID == "" {
		return ErrAccountNotFound
	}
	if !isValidLatitude(req.Lat) || !isValidLongitude(req.Lng) {
		return ErrInvalidLocation
	}

	loc := domain.Location{Lat: req.Lat, Lng: req.Lng, UpdatedAt: s.now()}
	if err := s.accountRepo.UpdateLocation(ctx, req.DriverID, loc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if _, err := s.registry.UpdateLocation(ctx, req.DriverID, loc, ""); err != nil {
		s.logger.Warn("presence refresh failed", "driver_id", req.DriverID, "error", err)
	}

	s.notifyActiveRide(ctx, req.DriverID, loc)
	return nil
}

// GoOnline makes the driver eligible for ride requests.
func (s *DriverService) GoOnline(ctx context.Context, client realtime.Client, vehicleType string, loc *domain.Location) error {
	if !client.Role.IsDriver() {
		return ErrDriversOnly
	}
	if vehicleType == "" {
		vehicleType = presence.DefaultVehicleType
	}
	if loc != nil {
		if !isValidLatitude(loc.Lat) || !isValidLongitude(loc.Lng) {
			return ErrInvalidLocation
		}
		loc.UpdatedAt = s.now()
	}

	err := s.registry.GoOnline(ctx, presence.Entry{
		AccountID:    client.AccountID,
		SessionID:    client.SessionID,
		VehicleType:  vehicleType,
		Location:     loc,
		LastActivity: s.now(),
	})
	if err != nil {
		return fmt.Errorf("go online: %w", err)
	}

	s.logger.Info("driver online", "driver_id", client.AccountID, "vehicle_type", vehicleType)
	s.refreshOnlineGauge(ctx)
	return nil
}

// GoOffline removes the driver from presence.
func (s *DriverService) GoOffline(ctx context.Context, accountID string) error {
	if err := s.registry.GoOffline(ctx, accountID); err != nil {
		return fmt.Errorf("go offline: %w", err)
	}
	s.logger.Info("driver offline", "driver_id", accountID)
	s.refreshOnlineGauge(ctx)
	return nil
}

type onlinePayload struct {
	VehicleType string       `json:"vehicleType"`
	Location    *locationArg `json:"location"`
}

type locationPayload struct {
	Location *locationArg `json:"location"`
}

type locationArg struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l *locationArg) toDomain() *domain.Location {
	if l == nil {
		return nil
	}
	return &domain.Location{Lat: l.Lat, Lng: l.Lng}
}

// HandleSocketEvent implements realtime.EventHandler for driver events.
// Unknown events are ignored.
func (s *DriverService) HandleSocketEvent(ctx context.Context, c realtime.Client, event string, data json.RawMessage) error {
	switch event {
	case EventDriverOnline:
		var p onlinePayload
		if err := decodeEventData(data, &p); err != nil {
			return err
		}
		return s.GoOnline(ctx, c, p.VehicleType, p.Location.toDomain())

	case EventDriverOffline:
		return s.GoOffline(ctx, c.AccountID)

	case EventDriverLocationUpdate:
		var p locationPayload
		if err := decodeEventData(data, &p); err != nil {
			return err
		}
		if p.Location == nil {
			return ErrInvalidLocation
		}
		if !isValidLatitude(p.Location.Lat) || !isValidLongitude(p.Location.Lng) {
			return ErrInvalidLocation
		}
		loc := domain.Location{Lat: p.Location.Lat, Lng: p.Location.Lng, UpdatedAt: s.now()}
		ok, err := s.registry.UpdateLocation(ctx, c.AccountID, loc, c.SessionID)
		if err != nil {
			return fmt.Errorf("update presence: %w", err)
		}
		if ok {
			s.notifyActiveRide(ctx, c.AccountID, loc)
		}
		return nil
	}
	return nil
}

func decodeEventData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("malformed event payload")
	}
	return nil
}

func (s *DriverService) notifyActiveRide(ctx context.Context, driverID string, loc domain.Location) {
	if s.notifier == nil {
		return
	}
	ride, err := s.rideRepo.GetActiveByDriver(ctx, driverID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("active ride lookup failed", "driver_id", driverID, "error", err)
		}
		ride = nil
	}
	s.notifier.NotifyDriverLocation(ctx, driverID, loc, ride)
}

func (s *DriverService) refreshOnlineGauge(ctx context.Context) {
	n, err := s.registry.Count(ctx)
	if err != nil {
		return
	}
	observability.DriversOnline.Set(float64(n))
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
