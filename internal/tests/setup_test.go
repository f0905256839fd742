package tests

import (
	"context"
	"testing"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/presence"
	"rapidride/internal/service"
)

// rideFixture wires a RideService over mocks.
type rideFixture struct {
	rides     *MockRideRepository
	accounts  *MockAccountRepository
	tx        *MockTxRunner
	hub       *MockBroadcaster
	publisher *MockPublisher
	registry  *presence.MemoryRegistry
	psp       *MockPSP
	locker    *MockDriverLocker
	estimator *MockEstimator
	service   *service.RideService

	rider  *domain.Account
	driver *domain.Account
	admin  *domain.Account
}

func newRideFixture(t *testing.T) *rideFixture {
	t.Helper()

	f := &rideFixture{
		rides:     NewMockRideRepository(),
		accounts:  NewMockAccountRepository(),
		hub:       NewMockBroadcaster(),
		publisher: NewMockPublisher(),
		registry:  presence.NewMemoryRegistry(time.Hour),
		psp:       NewMockPSP(),
		locker:    NewMockDriverLocker(),
		estimator: NewMockEstimator(9.2, 1500),
	}
	f.tx = NewMockTxRunner(f.rides, f.accounts)

	logger := DiscardLogger()
	notifier := service.NewNotificationService(f.hub, f.registry, f.publisher, logger)
	f.service = service.NewRideService(service.RideServiceDeps{
		Rides:     f.rides,
		Accounts:  f.accounts,
		Tx:        f.tx,
		Estimator: f.estimator,
		Notifier:  notifier,
		Payments:  service.NewPaymentService(f.rides, f.psp, logger),
		Locker:    f.locker,
		Logger:    logger,
	})

	f.rider = f.addAccount("rider-1", domain.RoleRider)
	f.driver = f.addAccount("driver-1", domain.RoleDriver)
	f.admin = f.addAccount("admin-1", domain.RoleAdmin)
	return f
}

func (f *rideFixture) addAccount(id string, role domain.Role) *domain.Account {
	a := &domain.Account{
		ID:          id,
		IdentityRef: "uid-" + id,
		Email:       id + "@example.com",
		Name:        "Test " + id,
		Role:        role,
		CreatedAt:   time.Now(),
	}
	if role.IsDriver() {
		a.Vehicle = &domain.Vehicle{Type: "Sedan", Model: "Dzire", Number: "KA01AB1234"}
	}
	f.accounts.AddAccount(a)
	return f.accounts.GetAccount(id)
}

// requestRide creates a ride from Koramangala to Indiranagar for the fixture rider.
func (f *rideFixture) requestRide(t *testing.T, method string) *domain.Ride {
	t.Helper()
	ride, err := f.service.RequestRide(context.Background(), f.rider, service.RequestRideRequest{
		Pickup:        domain.Place{Address: "Koramangala", Lat: 12.9352, Lng: 77.6245},
		Destination:   domain.Place{Address: "Indiranagar", Lat: 12.9784, Lng: 77.6408},
		VehicleType:   "Car",
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	return ride
}

// startedRide drives a new ride to started with the fixture driver.
func (f *rideFixture) startedRide(t *testing.T, method string) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	ride := f.requestRide(t, method)
	accepted, err := f.service.AcceptRide(ctx, f.driver, ride.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	started, err := f.service.StartRide(ctx, f.driver, ride.ID, accepted.Ride.OTP)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return started
}

// completedRide drives a new ride to completed with the fixture driver.
func (f *rideFixture) completedRide(t *testing.T) *domain.Ride {
	t.Helper()
	ride := f.startedRide(t, "cash")
	resp, err := f.service.CompleteRide(context.Background(), f.driver, ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return resp.Ride
}
