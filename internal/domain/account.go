package domain

import "time"

// Role is an account's role in the system.
type Role string

const (
	RoleRider   Role = "rider"
	RoleDriver  Role = "driver"
	RoleCaptain Role = "captain" // alias of driver
	RoleAdmin   Role = "admin"
)

// IsDriver reports whether the role drives rides.
func (r Role) IsDriver() bool {
	return r == RoleDriver || r == RoleCaptain
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleCaptain, RoleAdmin:
		return true
	}
	return false
}

// Vehicle describes a driver's vehicle.
type Vehicle struct {
	Type   string `json:"type,omitempty"`
	Model  string `json:"model,omitempty"`
	Number string `json:"number,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Location is a point with the time it was observed.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"lastUpdated,omitempty"`
}

// Stats are cumulative per-account ride statistics.
type Stats struct {
	TotalRides     int     `json:"totalRides"`
	CompletedRides int     `json:"completedRides"`
	CancelledRides int     `json:"cancelledRides"`
	TotalEarnings  float64 `json:"totalEarnings"`
	TotalDistance  float64 `json:"totalDistance"`
	Rating         float64 `json:"rating"`
	TotalRatings   int     `json:"totalRatings"`
}

// StatsDelta is an increment applied to Stats.
type StatsDelta struct {
	TotalRides     int
	CompletedRides int
	CancelledRides int
	Earnings       float64
	Distance       float64
}

// Account represents a person using the system.
type Account struct {
	ID              string
	IdentityRef     string // external identity subject; empty for legacy rows
	Email           string
	Phone           string
	Name            string
	Role            Role
	Gender          string
	Avatar          string
	License         string
	Vehicle         *Vehicle
	CurrentLocation *Location
	EmailVerified   bool
	PhoneVerified   bool
	Stats           Stats
	SavedPlaces     []SavedPlace
	CreatedAt       time.Time
}

// ProfileComplete reports whether the account has finished onboarding.
func (a *Account) ProfileComplete() bool {
	return a.Name != "" && a.Role != ""
}
