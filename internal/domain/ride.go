package domain

import (
	"fmt"
	"time"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested RideStatus = "requested"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusArrived   RideStatus = "arrived"
	RideStatusStarted   RideStatus = "started"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// ActiveRideStatuses are the non-terminal statuses, in lifecycle order.
var ActiveRideStatuses = []RideStatus{
	RideStatusRequested,
	RideStatusAccepted,
	RideStatusArrived,
	RideStatusStarted,
}

// DriverBusyStatuses are the statuses in which a driver is committed to a ride.
var DriverBusyStatuses = []RideStatus{
	RideStatusAccepted,
	RideStatusArrived,
	RideStatusStarted,
}

// IsTerminal reports whether no further transitions are possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// In reports whether s is one of the given statuses.
func (s RideStatus) In(statuses ...RideStatus) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Place is an addressed point.
type Place struct {
	Address string
	Lat     float64
	Lng     float64
}

// DefaultAddress fills an empty address with the coordinates.
func (p Place) DefaultAddress() Place {
	if p.Address == "" {
		p.Address = fmt.Sprintf("%v, %v", p.Lat, p.Lng)
	}
	return p
}

// Ride represents one transportation request.
type Ride struct {
	ID            string
	RiderID       string
	DriverID      string // empty while requested
	Pickup        Place
	Destination   Place
	VehicleType   string
	Fare          float64
	DistanceKm    float64
	DurationMin   int
	OTP           string
	Status        RideStatus
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentID     string
	Rating        *int
	Feedback      string
	Scheduled     bool
	ScheduledTime *time.Time
	CreatedAt     time.Time
	AcceptedAt    time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	CancelledAt   time.Time
}

// IsParticipant reports whether the account is the ride's rider or driver.
func (r *Ride) IsParticipant(accountID string) bool {
	return accountID != "" && (r.RiderID == accountID || r.DriverID == accountID)
}

// Participants returns the rider and, when assigned, the driver.
func (r *Ride) Participants() []string {
	if r.DriverID == "" {
		return []string{r.RiderID}
	}
	return []string{r.RiderID, r.DriverID}
}
