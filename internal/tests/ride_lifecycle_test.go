package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"rapidride/internal/domain"
	"rapidride/internal/service"
)

// ──────────────────────────────────────────────
// 1. RIDE REQUEST
// ──────────────────────────────────────────────

func TestRideRequest_PricesByVehicleRate(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.requestRide(t, "")

	// 50 base + 9.2 km * 18 per km = 215.6
	if ride.Fare != 216 {
		t.Errorf("expected fare 216, got %v", ride.Fare)
	}
	if ride.DistanceKm != 9.2 {
		t.Errorf("expected distance 9.2, got %v", ride.DistanceKm)
	}
	if ride.DurationMin != 25 {
		t.Errorf("expected duration 25 min, got %d", ride.DurationMin)
	}
	if ride.PaymentMethod != domain.PaymentMethodCash {
		t.Errorf("expected default payment method cash, got %s", ride.PaymentMethod)
	}
	if ride.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected payment pending, got %s", ride.PaymentStatus)
	}
}

func TestRideRequest_StartsRequestedWithoutDriver(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.requestRide(t, "cash")

	stored := f.rides.GetRide(ride.ID)
	if stored == nil {
		t.Fatal("ride not persisted")
	}
	if stored.Status != domain.RideStatusRequested {
		t.Errorf("expected status requested, got %s", stored.Status)
	}
	if stored.DriverID != "" {
		t.Errorf("expected no driver, got %q", stored.DriverID)
	}
	if stored.OTP != "" {
		t.Errorf("expected no OTP before acceptance, got %q", stored.OTP)
	}
}

func TestRideRequest_InvalidInput_Rejected(t *testing.T) {
	t.Parallel()

	valid := domain.Place{Lat: 12.97, Lng: 77.59}

	testCases := []struct {
		name    string
		req     service.RequestRideRequest
		wantErr error
	}{
		{
			name:    "pickup latitude out of range",
			req:     service.RequestRideRequest{Pickup: domain.Place{Lat: 91, Lng: 77}, Destination: valid},
			wantErr: service.ErrInvalidPickupLocation,
		},
		{
			name:    "destination longitude out of range",
			req:     service.RequestRideRequest{Pickup: valid, Destination: domain.Place{Lat: 12, Lng: 200}},
			wantErr: service.ErrInvalidDestinationLocation,
		},
		{
			name:    "traffic level too high",
			req:     service.RequestRideRequest{Pickup: valid, Destination: valid, TrafficLevel: 3.5},
			wantErr: service.ErrInvalidTrafficLevel,
		},
		{
			name:    "unknown payment method",
			req:     service.RequestRideRequest{Pickup: valid, Destination: valid, PaymentMethod: "barter"},
			wantErr: service.ErrInvalidPaymentMethod,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newRideFixture(t)
			_, err := f.service.RequestRide(context.Background(), f.rider, tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
			if f.rides.CountRides() != 0 {
				t.Error("expected no ride to be persisted")
			}
		})
	}
}

func TestRideRequest_NotifiesMatchingOnlineDrivers(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	svc := service.NewDriverService(f.accounts, f.rides, f.registry, nil, DiscardLogger())

	online := []struct {
		id      string
		vehicle string
	}{
		{"driver-sedan", "Sedan"},
		{"driver-bike", "Bike"},
		{"driver-hatch", "Hatchback"},
	}
	for _, d := range online {
		acct := f.addAccount(d.id, domain.RoleDriver)
		if err := svc.GoOnline(ctx, clientFor(acct), d.vehicle, nil); err != nil {
			t.Fatalf("go online %s: %v", d.id, err)
		}
	}

	f.requestRide(t, "cash")

	sent := f.hub.Events(service.EventRideNewRequest)
	if len(sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sent))
	}
	got := fmt.Sprint(sent[0].AccountIDs)
	if got != "[driver-hatch driver-sedan]" {
		t.Errorf("expected car drivers only, got %s", got)
	}
}

func TestRideRequest_NotifiesNearestDriversFirst(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	svc := service.NewDriverService(f.accounts, f.rides, f.registry, nil, DiscardLogger())

	// Pickup is Koramangala (12.9352, 77.6245).
	online := []struct {
		id  string
		loc *domain.Location
	}{
		{"driver-a-far", &domain.Location{Lat: 13.0500, Lng: 77.6000}},
		{"driver-b-unknown", nil},
		{"driver-c-near", &domain.Location{Lat: 12.9360, Lng: 77.6250}},
	}
	for _, d := range online {
		acct := f.addAccount(d.id, domain.RoleDriver)
		if err := svc.GoOnline(ctx, clientFor(acct), "Sedan", d.loc); err != nil {
			t.Fatalf("go online %s: %v", d.id, err)
		}
	}

	f.requestRide(t, "cash")

	sent := f.hub.Events(service.EventRideNewRequest)
	if len(sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sent))
	}
	got := fmt.Sprint(sent[0].AccountIDs)
	if got != "[driver-c-near driver-a-far driver-b-unknown]" {
		t.Errorf("expected nearest drivers first, got %s", got)
	}
}

// ──────────────────────────────────────────────
// 2. FULL LIFECYCLE
// ──────────────────────────────────────────────

func TestRideLifecycle_RequestToRating(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()

	ride := f.requestRide(t, "cash")

	accepted, err := f.service.AcceptRide(ctx, f.driver, ride.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Ride.Status != domain.RideStatusAccepted || accepted.Ride.DriverID != f.driver.ID {
		t.Fatalf("expected accepted by %s, got %s by %q", f.driver.ID, accepted.Ride.Status, accepted.Ride.DriverID)
	}
	if len(accepted.Ride.OTP) != 4 {
		t.Errorf("expected 4 digit OTP, got %q", accepted.Ride.OTP)
	}
	if accepted.Rider == nil || accepted.Rider.ID != f.rider.ID {
		t.Error("expected rider details in accept response")
	}

	arrived, err := f.service.MarkArrived(ctx, f.driver, ride.ID)
	if err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if arrived.Status != domain.RideStatusArrived {
		t.Errorf("expected arrived, got %s", arrived.Status)
	}

	if _, err := f.service.StartRide(ctx, f.driver, ride.ID, wrongOTP(accepted.Ride.OTP)); !errors.Is(err, service.ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if got := f.rides.GetRide(ride.ID).Status; got != domain.RideStatusArrived {
		t.Fatalf("wrong OTP must not change status, got %s", got)
	}

	started, err := f.service.StartRide(ctx, f.driver, ride.ID, accepted.Ride.OTP)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.RideStatusStarted || started.StartedAt.IsZero() {
		t.Errorf("expected started with timestamp, got %s", started.Status)
	}

	completed, err := f.service.CompleteRide(ctx, f.driver, ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Ride.Status != domain.RideStatusCompleted {
		t.Errorf("expected completed, got %s", completed.Ride.Status)
	}
	if completed.DriverStats.CompletedRides != 1 || completed.DriverStats.TotalEarnings != ride.Fare {
		t.Errorf("unexpected driver stats: %+v", completed.DriverStats)
	}
	if completed.RiderStats.CompletedRides != 1 || completed.RiderStats.TotalDistance != ride.DistanceKm {
		t.Errorf("unexpected rider stats: %+v", completed.RiderStats)
	}
	if got := f.rides.GetRide(ride.ID).PaymentStatus; got != domain.PaymentStatusCompleted {
		t.Errorf("expected cash ride to be settled, got %s", got)
	}

	rated, err := f.service.RateRide(ctx, f.rider, ride.ID, 4, "smooth")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.DriverRating == nil || *rated.DriverRating != 4 {
		t.Errorf("expected driver rating 4, got %v", rated.DriverRating)
	}

	want := []string{
		service.EventRideNewRequest,
		service.EventRideAccepted,
		service.EventRideArrived,
		service.EventRideStarted,
		service.EventRideCompleted,
	}
	if got := fmt.Sprint(f.publisher.Names()); got != fmt.Sprint(want) {
		t.Errorf("expected events %v, got %s", want, got)
	}
}

func TestRideLifecycle_DriverSetIffNotRequested(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	ride := f.requestRide(t, "cash")

	check := func(step string) {
		r := f.rides.GetRide(ride.ID)
		if (r.Status == domain.RideStatusRequested) != (r.DriverID == "") {
			t.Errorf("%s: status %s with driver %q", step, r.Status, r.DriverID)
		}
	}

	check("requested")
	accepted, err := f.service.AcceptRide(ctx, f.driver, ride.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	check("accepted")
	if _, err := f.service.StartRide(ctx, f.driver, ride.ID, accepted.Ride.OTP); err != nil {
		t.Fatalf("start: %v", err)
	}
	check("started")
	if _, err := f.service.CancelRide(ctx, f.rider, ride.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	check("cancelled")
}

func TestRideLifecycle_CardPaymentCreatesIntent(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.startedRide(t, "card")

	if _, err := f.service.CompleteRide(context.Background(), f.driver, ride.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored := f.rides.GetRide(ride.ID)
	if stored.PaymentID != "pi_"+ride.ID {
		t.Errorf("expected payment intent id, got %q", stored.PaymentID)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected card payment pending capture, got %s", stored.PaymentStatus)
	}
	if f.psp.CreateIntentCallCount != 1 {
		t.Errorf("expected one PSP call, got %d", f.psp.CreateIntentCallCount)
	}
}

func TestRideLifecycle_CardPaymentFailure_DoesNotFailCompletion(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	f.psp.ShouldFail = true
	ride := f.startedRide(t, "card")

	resp, err := f.service.CompleteRide(context.Background(), f.driver, ride.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Ride.Status != domain.RideStatusCompleted {
		t.Errorf("expected completed, got %s", resp.Ride.Status)
	}
	if got := f.rides.GetRide(ride.ID).PaymentStatus; got != domain.PaymentStatusFailed {
		t.Errorf("expected payment failed, got %s", got)
	}
}

// ──────────────────────────────────────────────
// 3. TRANSITION GUARDS
// ──────────────────────────────────────────────

func TestRideTransitions_InvalidCallers(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	other := f.addAccount("driver-2", domain.RoleDriver)
	ride := f.requestRide(t, "cash")

	if _, err := f.service.AcceptRide(ctx, f.rider, ride.ID); !errors.Is(err, service.ErrForbiddenRole) {
		t.Errorf("rider accepting: expected ErrForbiddenRole, got %v", err)
	}
	if _, err := f.service.MarkArrived(ctx, f.driver, ride.ID); !errors.Is(err, service.ErrNotRideParticipant) {
		t.Errorf("arrive before accept: expected ErrNotRideParticipant, got %v", err)
	}

	if _, err := f.service.AcceptRide(ctx, f.driver, ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.service.MarkArrived(ctx, other, ride.ID); !errors.Is(err, service.ErrNotRideParticipant) {
		t.Errorf("other driver arriving: expected ErrNotRideParticipant, got %v", err)
	}
	if _, err := f.service.CompleteRide(ctx, f.driver, ride.ID); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("complete before start: expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := f.service.CancelRide(ctx, f.addAccount("rider-2", domain.RoleRider), ride.ID); !errors.Is(err, service.ErrNotRideParticipant) {
		t.Errorf("stranger cancelling: expected ErrNotRideParticipant, got %v", err)
	}
}

func TestRideTransitions_UnknownRide(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()

	if _, err := f.service.AcceptRide(ctx, f.driver, "missing"); !errors.Is(err, service.ErrRideNotFound) {
		t.Errorf("expected ErrRideNotFound, got %v", err)
	}
	if _, err := f.service.CancelRide(ctx, f.rider, ""); !errors.Is(err, service.ErrInvalidRideID) {
		t.Errorf("expected ErrInvalidRideID, got %v", err)
	}
}

func TestRideTransitions_ArrivedTwice_Rejected(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	ride := f.requestRide(t, "cash")
	if _, err := f.service.AcceptRide(ctx, f.driver, ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.service.MarkArrived(ctx, f.driver, ride.ID); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	if _, err := f.service.MarkArrived(ctx, f.driver, ride.ID); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestRideTransitions_StartWithoutArrival_Allowed(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.startedRide(t, "cash")
	if ride.Status != domain.RideStatusStarted {
		t.Errorf("expected started straight from accepted, got %s", ride.Status)
	}
}

func TestRideCancel_TerminalRide_Rejected(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.completedRide(t)

	_, err := f.service.CancelRide(context.Background(), f.rider, ride.ID)
	if !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
	if got := f.rides.GetRide(ride.ID).Status; got != domain.RideStatusCompleted {
		t.Errorf("expected ride to stay completed, got %s", got)
	}
}

func TestRideCancel_CountsAndNotifiesDriver(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	ride := f.requestRide(t, "cash")
	if _, err := f.service.AcceptRide(ctx, f.driver, ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	cancelled, err := f.service.CancelRide(ctx, f.rider, ride.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.RideStatusCancelled || cancelled.CancelledAt.IsZero() {
		t.Errorf("expected cancelled with timestamp, got %s", cancelled.Status)
	}
	if got := f.accounts.GetAccount(f.rider.ID).Stats.CancelledRides; got != 1 {
		t.Errorf("expected 1 cancelled ride on rider, got %d", got)
	}

	sent := f.hub.Events(service.EventRideCancelled)
	if len(sent) != 1 || fmt.Sprint(sent[0].AccountIDs) != "[driver-1]" {
		t.Errorf("expected cancellation sent to driver, got %+v", sent)
	}

	// Driver is free again.
	next := f.requestRide(t, "cash")
	if _, err := f.service.AcceptRide(ctx, f.driver, next.ID); err != nil {
		t.Errorf("expected driver to accept after cancellation, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 4. CONCURRENT ACCEPTANCE
// ──────────────────────────────────────────────

func TestAcceptRide_ConcurrentDrivers_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.requestRide(t, "cash")

	const n = 10
	drivers := make([]*domain.Account, n)
	for i := range drivers {
		drivers[i] = f.addAccount(fmt.Sprintf("racer-%d", i), domain.RoleDriver)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.AcceptRide(context.Background(), drivers[i], ride.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrInvalidStateTransition):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one accept, got %d", wins)
	}

	stored := f.rides.GetRide(ride.ID)
	if stored.Status != domain.RideStatusAccepted || stored.DriverID == "" {
		t.Errorf("expected accepted ride with a driver, got %s/%q", stored.Status, stored.DriverID)
	}
}

func TestAcceptRide_SameDriverTwoRides_OneWins(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	first := f.requestRide(t, "cash")
	second := f.requestRide(t, "cash")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.service.AcceptRide(context.Background(), f.driver, id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, service.ErrDriverHasActiveRide) {
			t.Errorf("expected ErrDriverHasActiveRide, got %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one accept, got %d", wins)
	}
	if f.locker.IsLocked(f.driver.ID) {
		t.Error("expected driver lock to be released")
	}
}

func TestAcceptRide_LockUnavailable_FallsBackToDatabase(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	f.locker.AcquireError = errors.New("redis down")
	ride := f.requestRide(t, "cash")

	if _, err := f.service.AcceptRide(context.Background(), f.driver, ride.ID); err != nil {
		t.Fatalf("expected accept without lock, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 5. RATING
// ──────────────────────────────────────────────

func TestRateRide_OnlyOnce(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ride := f.completedRide(t)
	ctx := context.Background()

	if _, err := f.service.RateRide(ctx, f.rider, ride.ID, 5, ""); err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if _, err := f.service.RateRide(ctx, f.rider, ride.ID, 1, ""); !errors.Is(err, service.ErrRideAlreadyRated) {
		t.Errorf("expected ErrRideAlreadyRated, got %v", err)
	}

	driver := f.accounts.GetAccount(f.driver.ID)
	if driver.Stats.TotalRatings != 1 || driver.Stats.Rating != 5 {
		t.Errorf("expected one 5 star rating, got %+v", driver.Stats)
	}
}

func TestRateRide_AveragesAcrossRides(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()

	for _, r := range []int{5, 4, 3} {
		ride := f.completedRide(t)
		if _, err := f.service.RateRide(ctx, f.rider, ride.ID, r, ""); err != nil {
			t.Fatalf("rate %d: %v", r, err)
		}
	}

	if got := f.accounts.GetAccount(f.driver.ID).Stats.Rating; got != 4 {
		t.Errorf("expected average 4, got %v", got)
	}
}

func TestRateRide_Rejections(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		rating  int
		setup   func(t *testing.T, f *rideFixture) (*domain.Account, string)
		wantErr error
	}{
		{
			name:   "rating out of range",
			rating: 6,
			setup: func(t *testing.T, f *rideFixture) (*domain.Account, string) {
				return f.rider, f.completedRide(t).ID
			},
			wantErr: service.ErrInvalidRating,
		},
		{
			name:   "ride not completed",
			rating: 4,
			setup: func(t *testing.T, f *rideFixture) (*domain.Account, string) {
				return f.rider, f.requestRide(t, "cash").ID
			},
			wantErr: service.ErrInvalidStateTransition,
		},
		{
			name:   "not the rider",
			rating: 4,
			setup: func(t *testing.T, f *rideFixture) (*domain.Account, string) {
				return f.addAccount("rider-x", domain.RoleRider), f.completedRide(t).ID
			},
			wantErr: service.ErrNotRideParticipant,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRideFixture(t)
			caller, rideID := tc.setup(t, f)
			_, err := f.service.RateRide(context.Background(), caller, rideID, tc.rating, "")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// ──────────────────────────────────────────────
// 6. READS
// ──────────────────────────────────────────────

func TestGetRide_VisibleToParticipantsAndAdmin(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()
	ride := f.requestRide(t, "cash")

	if _, err := f.service.GetRide(ctx, f.rider, ride.ID); err != nil {
		t.Errorf("rider: %v", err)
	}
	if _, err := f.service.GetRide(ctx, f.admin, ride.ID); err != nil {
		t.Errorf("admin: %v", err)
	}
	if _, err := f.service.GetRide(ctx, f.driver, ride.ID); !errors.Is(err, service.ErrRideNotFound) {
		t.Errorf("unassigned driver: expected ErrRideNotFound, got %v", err)
	}
}

func TestCurrentRide_ByRole(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	ctx := context.Background()

	if _, err := f.service.CurrentRide(ctx, f.rider); !errors.Is(err, service.ErrNoActiveRide) {
		t.Errorf("expected ErrNoActiveRide, got %v", err)
	}

	ride := f.requestRide(t, "cash")
	if _, err := f.service.AcceptRide(ctx, f.driver, ride.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, caller := range []*domain.Account{f.rider, f.driver} {
		details, err := f.service.CurrentRide(ctx, caller)
		if err != nil {
			t.Fatalf("%s: %v", caller.Role, err)
		}
		if details.Ride.ID != ride.ID {
			t.Errorf("%s: expected ride %s, got %s", caller.Role, ride.ID, details.Ride.ID)
		}
		if details.Driver == nil || details.Rider == nil {
			t.Errorf("%s: expected both participants", caller.Role)
		}
	}
}

func TestHistory_Pagination(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	for i := 0; i < 3; i++ {
		f.requestRide(t, "cash")
	}

	page, err := f.service.History(context.Background(), f.rider, 2, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Rides) != 2 || page.Total != 3 || !page.HasMore {
		t.Errorf("unexpected first page: %d rides, total %d, hasMore %v", len(page.Rides), page.Total, page.HasMore)
	}

	page, err = f.service.History(context.Background(), f.rider, 2, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Rides) != 1 || page.HasMore {
		t.Errorf("unexpected last page: %d rides, hasMore %v", len(page.Rides), page.HasMore)
	}
}

func TestClearActive_CancelsOnlyActiveRides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRideFixture(t)
	done := f.completedRide(t)
	assigned := f.requestRide(t, "cash")
	if _, err := f.service.AcceptRide(ctx, f.driver, assigned.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.requestRide(t, "cash")

	cleared, err := f.service.ClearActive(ctx, f.rider)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared, got %d", len(cleared))
	}
	for _, ride := range cleared {
		if ride.Status != domain.RideStatusCancelled {
			t.Errorf("ride %s returned as %s", ride.ID, ride.Status)
		}
	}
	if got := f.rides.GetRide(done.ID).Status; got != domain.RideStatusCompleted {
		t.Errorf("completed ride changed to %s", got)
	}
	if got := f.accounts.GetAccount(f.rider.ID).Stats.CancelledRides; got != 2 {
		t.Errorf("expected 2 cancellations counted, got %d", got)
	}

	// Only the accepted ride had a driver to tell.
	events := f.hub.Events(service.EventRideCancelled)
	if len(events) != 1 || len(events[0].AccountIDs) != 1 || events[0].AccountIDs[0] != f.driver.ID {
		t.Errorf("expected one cancellation to %s, got %+v", f.driver.ID, events)
	}
}

func TestClearActive_NothingToClear(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	cleared, err := f.service.ClearActive(context.Background(), f.rider)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cleared) != 0 {
		t.Errorf("expected nothing cleared, got %d", len(cleared))
	}
	if got := f.accounts.GetAccount(f.rider.ID).Stats.CancelledRides; got != 0 {
		t.Errorf("expected no cancellations counted, got %d", got)
	}
}

func TestAdminActive_CountsNonTerminal(t *testing.T) {
	t.Parallel()

	f := newRideFixture(t)
	f.completedRide(t)
	f.requestRide(t, "cash")

	summary, err := f.service.AdminActive(context.Background())
	if err != nil {
		t.Fatalf("admin active: %v", err)
	}
	if summary.Count != 1 || summary.Statuses[domain.RideStatusRequested] != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func wrongOTP(otp string) string {
	if otp == "0000" {
		return "1111"
	}
	return "0000"
}
