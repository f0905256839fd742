package tests

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/presence"
	"rapidride/internal/realtime"
	"rapidride/internal/service"
)

func clientFor(a *domain.Account) realtime.Client {
	return realtime.Client{SessionID: "sess-" + a.ID, AccountID: a.ID, Role: a.Role}
}

type driverFixture struct {
	accounts *MockAccountRepository
	rides    *MockRideRepository
	registry *presence.MemoryRegistry
	hub      *MockBroadcaster
	service  *service.DriverService
}

func newDriverFixture() *driverFixture {
	f := &driverFixture{
		accounts: NewMockAccountRepository(),
		rides:    NewMockRideRepository(),
		registry: presence.NewMemoryRegistry(time.Hour),
		hub:      NewMockBroadcaster(),
	}
	logger := DiscardLogger()
	notifier := service.NewNotificationService(f.hub, f.registry, NewMockPublisher(), logger)
	f.service = service.NewDriverService(f.accounts, f.rides, f.registry, notifier, logger)
	return f
}

// ──────────────────────────────────────────────
// 1. PRESENCE OVER THE SOCKET
// ──────────────────────────────────────────────

func TestDriverSocket_OnlineOffline(t *testing.T) {
	t.Parallel()

	f := newDriverFixture()
	ctx := context.Background()
	driver := &domain.Account{ID: "drv", Role: domain.RoleDriver}

	data := json.RawMessage(`{"vehicleType":"Auto","location":{"lat":12.9,"lng":77.6}}`)
	if err := f.service.HandleSocketEvent(ctx, clientFor(driver), service.EventDriverOnline, data); err != nil {
		t.Fatalf("online: %v", err)
	}

	entry, ok := f.registry.Get("drv")
	if !ok {
		t.Fatal("expected driver to be online")
	}
	if entry.VehicleType != "Auto" || entry.SessionID != "sess-drv" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Location == nil || entry.Location.Lat != 12.9 {
		t.Errorf("expected initial location, got %+v", entry.Location)
	}

	if err := f.service.HandleSocketEvent(ctx, clientFor(driver), service.EventDriverOffline, nil); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if _, ok := f.registry.Get("drv"); ok {
		t.Error("expected driver to be offline")
	}
}

func TestDriverSocket_OnlineDefaultsVehicleType(t *testing.T) {
	t.Parallel()

	f := newDriverFixture()
	driver := &domain.Account{ID: "drv", Role: domain.RoleCaptain}

	if err := f.service.HandleSocketEvent(context.Background(), clientFor(driver), service.EventDriverOnline, nil); err != nil {
		t.Fatalf("online: %v", err)
	}
	entry, _ := f.registry.Get("drv")
	if entry.VehicleType != presence.DefaultVehicleType {
		t.Errorf("expected %s, got %s", presence.DefaultVehicleType, entry.VehicleType)
	}
}

func TestDriverSocket_Rejections(t *testing.T) {
	t.Parallel()

	rider := &domain.Account{ID: "rdr", Role: domain.RoleRider}
	driver := &domain.Account{ID: "drv", Role: domain.RoleDriver}

	testCases := []struct {
		name    string
		account *domain.Account
		event   string
		data    string
		wantErr error
	}{
		{"rider going online", rider, service.EventDriverOnline, `{}`, service.ErrDriversOnly},
		{"location out of range", driver, service.EventDriverLocationUpdate, `{"location":{"lat":95,"lng":77}}`, service.ErrInvalidLocation},
		{"location missing", driver, service.EventDriverLocationUpdate, `{}`, service.ErrInvalidLocation},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newDriverFixture()
			err := f.service.HandleSocketEvent(context.Background(), clientFor(tc.account), tc.event, json.RawMessage(tc.data))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDriverSocket_MalformedPayload(t *testing.T) {
	t.Parallel()

	f := newDriverFixture()
	driver := &domain.Account{ID: "drv", Role: domain.RoleDriver}

	err := f.service.HandleSocketEvent(context.Background(), clientFor(driver), service.EventDriverOnline, json.RawMessage(`{"vehicleType":`))
	if err == nil {
		t.Fatal("expected an error for malformed payload")
	}
	if _, ok := f.registry.Get("drv"); ok {
		t.Error("driver must not go online on malformed payload")
	}
}

func TestDriverSocket_LocationForwardedToRider(t *testing.T) {
	t.Parallel()

	f := newDriverFixture()
	ctx := context.Background()
	driver := &domain.Account{ID: "drv", Role: domain.RoleDriver}
	f.rides.AddRide(&domain.Ride{ID: "ride-1", RiderID: "rdr", DriverID: "drv", Status: domain.RideStatusAccepted, CreatedAt: time.Now()})

	// Location from a driver that is not online is ignored.
	loc := json.RawMessage(`{"location":{"lat":12.95,"lng":77.61}}`)
	if err := f.service.HandleSocketEvent(ctx, clientFor(driver), service.EventDriverLocationUpdate, loc); err != nil {
		t.Fatalf("location: %v", err)
	}
	if n := len(f.hub.Events(service.EventDriverLocation)); n != 0 {
		t.Fatalf("expected no forwarding while offline, got %d", n)
	}

	if err := f.service.GoOnline(ctx, clientFor(driver), "Sedan", nil); err != nil {
		t.Fatalf("online: %v", err)
	}
	if err := f.service.HandleSocketEvent(ctx, clientFor(driver), service.EventDriverLocationUpdate, loc); err != nil {
		t.Fatalf("location: %v", err)
	}

	sent := f.hub.Events(service.EventDriverLocation)
	if len(sent) != 1 || len(sent[0].AccountIDs) != 1 || sent[0].AccountIDs[0] != "rdr" {
		t.Fatalf("expected location sent to rider, got %+v", sent)
	}
	payload, ok := sent[0].Payload.(service.DriverLocationPayload)
	if !ok || payload.RideID != "ride-1" || payload.Location.Lat != 12.95 {
		t.Errorf("unexpected payload: %+v", sent[0].Payload)
	}
}

// ──────────────────────────────────────────────
// 2. HTTP LOCATION UPDATES
// ──────────────────────────────────────────────

func TestUpdateLocation_PersistsAndRefreshesPresence(t *testing.T) {
	t.Parallel()

	f := newDriverFixture()
	ctx := context.Background()
	driver := &domain.Account{ID: "drv", Role: domain.RoleDriver}
	f.accounts.AddAccount(driver)
	if err := f.service.GoOnline(ctx, clientFor(driver), "Sedan", nil); err != nil {
		t.Fatalf("online: %v", err)
	}

	if err := f.service.UpdateLocation(ctx, service.UpdateLocationRequest{DriverID: "drv", Lat: 13.0, Lng: 77.5}); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored := f.accounts.GetAccount("drv")
	if stored.CurrentLocation == nil || stored.CurrentLocation.Lat != 13.0 {
		t.Errorf("expected stored location, got %+v", stored.CurrentLocation)
	}
	entry, _ := f.registry.Get("drv")
	if entry.Location == nil || entry.Location.Lng != 77.5 {
		t.Errorf("expected presence location, got %+v", entry.Location)
	}
	if entry.SessionID != "sess-drv" {
		t.Errorf("HTTP update must keep the socket session, got %q", entry.SessionID)
	}
}

func TestUpdateLocation_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		req     service.UpdateLocationRequest
		wantErr error
	}{
		{"latitude too low", service.UpdateLocationRequest{DriverID: "drv", Lat: -91, Lng: 0}, service.ErrInvalidLocation},
		{"longitude too high", service.UpdateLocationRequest{DriverID: "drv", Lat: 0, Lng: 181}, service.ErrInvalidLocation},
		{"unknown driver", service.UpdateLocationRequest{DriverID: "ghost", Lat: 1, Lng: 1}, service.ErrAccountNotFound},
		{"missing driver", service.UpdateLocationRequest{Lat: 1, Lng: 1}, service.ErrAccountNotFound},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newDriverFixture()
			f.accounts.AddAccount(&domain.Account{ID: "drv", Role: domain.RoleDriver})
			err := f.service.UpdateLocation(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
