package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/estimator"
	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// Geocoder turns coordinates into an address. It never fails.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) estimator.Address
}

// RouteFinder returns a driving route. It never fails.
type RouteFinder interface {
	Route(ctx context.Context, pickup, drop estimator.Point) *estimator.RouteResponse
}

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
	geocoder    Geocoder
	router      RouteFinder
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, geocoder Geocoder, router RouteFinder) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		geocoder:    geocoder,
		router:      router,
	}
}

// PointRequest is a coordinate in a request body.
type PointRequest struct {
	Lat *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
}

func (p *PointRequest) point() estimator.Point {
	return estimator.Point{Lat: *p.Lat, Lng: *p.Lng}
}

// PlaceRequest is a coordinate with an optional address.
type PlaceRequest struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
}

func (p *PlaceRequest) place() domain.Place {
	return domain.Place{Address: p.Address, Lat: *p.Lat, Lng: *p.Lng}
}

// PlaceResponse is a place in a response body.
type PlaceResponse struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func newPlaceResponse(p domain.Place) PlaceResponse {
	return PlaceResponse{Address: p.Address, Lat: p.Lat, Lng: p.Lng}
}

// EstimateRequest is the HTTP request body for a fare estimate.
type EstimateRequest struct {
	Pickup       *PointRequest `json:"pickup" binding:"required"`
	Destination  *PointRequest `json:"destination" binding:"required"`
	TrafficLevel float64       `json:"traffic_level" binding:"omitempty,gte=0.5,lte=3"`
}

// EstimateResponse is the HTTP response for a fare estimate.
type EstimateResponse struct {
	Fare       float64 `json:"fare"`
	DistanceKm float64 `json:"distance_km"`
	Currency   string  `json:"currency"`
	ETASeconds int     `json:"eta_seconds"`
	ETAMinutes int     `json:"eta_minutes"`
	Confidence float64 `json:"confidence"`
	Fallback   bool    `json:"fallback"`
}

// Estimate handles POST /api/rides/estimate
func (h *RideHandler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.rideService.Estimate(c.Request.Context(), service.EstimateRequest{
		Pickup:       req.Pickup.point(),
		Destination:  req.Destination.point(),
		TrafficLevel: req.TrafficLevel,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	est := result.Estimate()
	respondJSON(c, http.StatusOK, EstimateResponse{
		Fare:       est.Fare,
		DistanceKm: est.DistanceKm,
		Currency:   est.Currency,
		ETASeconds: est.ETASeconds,
		ETAMinutes: est.ETAMinutes(),
		Confidence: est.Confidence,
		Fallback:   estimator.IsFallback(result),
	})
}

// RequestRideRequest is the HTTP request body for requesting a ride.
type RequestRideRequest struct {
	Pickup        *PlaceRequest `json:"pickup" binding:"required"`
	Destination   *PlaceRequest `json:"destination" binding:"required"`
	PaymentMethod string        `json:"payment_method,omitempty"` // cash, card, upi, wallet
	VehicleType   string        `json:"vehicleType,omitempty"`
	TrafficLevel  float64       `json:"traffic_level" binding:"omitempty,gte=0.5,lte=3"`
	Scheduled     bool          `json:"scheduled,omitempty"`
	ScheduledTime *time.Time    `json:"scheduledTime,omitempty"`
}

// RequestedRide summarises a ride that is waiting for a driver.
type RequestedRide struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Driver        *struct{}     `json:"driver"`
	Pickup        PlaceResponse `json:"pickup"`
	Destination   PlaceResponse `json:"destination"`
	VehicleType   string        `json:"vehicleType"`
	Fare          float64       `json:"fare"`
	DistanceKm    float64       `json:"distance_km"`
	EstimatedETA  int           `json:"estimated_eta"`
	PaymentMethod string        `json:"payment_method"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// RequestRideResponse is the HTTP response for requesting a ride.
type RequestRideResponse struct {
	Success bool          `json:"success"`
	Ride    RequestedRide `json:"ride"`
	RideID  string        `json:"rideId"`
}

// RequestRide handles POST /api/rides/request
func (h *RideHandler) RequestRide(c *gin.Context) {
	var req RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var scheduled *time.Time
	if req.Scheduled {
		scheduled = req.ScheduledTime
	}

	ride, err := h.rideService.RequestRide(c.Request.Context(), middleware.CurrentAccount(c), service.RequestRideRequest{
		Pickup:        req.Pickup.place(),
		Destination:   req.Destination.place(),
		VehicleType:   req.VehicleType,
		PaymentMethod: req.PaymentMethod,
		TrafficLevel:  req.TrafficLevel,
		ScheduledTime: scheduled,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RequestRideResponse{
		Success: true,
		RideID:  ride.ID,
		Ride: RequestedRide{
			ID:            ride.ID,
			Status:        "searching",
			Pickup:        newPlaceResponse(ride.Pickup),
			Destination:   newPlaceResponse(ride.Destination),
			VehicleType:   ride.VehicleType,
			Fare:          ride.Fare,
			DistanceKm:    ride.DistanceKm,
			EstimatedETA:  ride.DurationMin * 60,
			PaymentMethod: string(ride.PaymentMethod),
			CreatedAt:     ride.CreatedAt,
		},
	})
}

// RideResponse is a ride as shown to its participants.
type RideResponse struct {
	ID            string                 `json:"_id"`
	Status        string                 `json:"status"`
	Pickup        PlaceResponse          `json:"pickup"`
	Dropoff       PlaceResponse          `json:"dropoff"`
	VehicleType   string                 `json:"vehicleType"`
	Fare          float64                `json:"fare"`
	Distance      float64                `json:"distance"`
	EstimatedTime int                    `json:"estimatedTime"`
	OTP           string                 `json:"otp,omitempty"`
	PaymentMethod string                 `json:"paymentMethod"`
	PaymentStatus string                 `json:"paymentStatus"`
	Driver        *service.DriverSummary `json:"driver"`
	RiderName     string                 `json:"riderName,omitempty"`
	RiderPhone    string                 `json:"riderPhone,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

const defaultRiderName = "Rider"

// newRideResponse renders details for viewer. The start code is only
// shown to the rider, who reads it out to the driver.
func newRideResponse(d *service.RideDetails, viewer *domain.Account, withRider bool) RideResponse {
	r := d.Ride
	resp := RideResponse{
		ID:            r.ID,
		Status:        string(r.Status),
		Pickup:        newPlaceResponse(r.Pickup),
		Dropoff:       newPlaceResponse(r.Destination),
		VehicleType:   r.VehicleType,
		Fare:          r.Fare,
		Distance:      r.DistanceKm,
		EstimatedTime: r.DurationMin * 60,
		PaymentMethod: string(r.PaymentMethod),
		PaymentStatus: string(r.PaymentStatus),
		Driver:        service.NewDriverSummary(d.Driver),
		CreatedAt:     r.CreatedAt,
	}
	if viewer == nil || viewer.ID == r.RiderID || viewer.Role == domain.RoleAdmin {
		resp.OTP = r.OTP
	}
	if withRider {
		resp.RiderName = defaultRiderName
		if d.Rider != nil {
			if d.Rider.Name != "" {
				resp.RiderName = d.Rider.Name
			}
			resp.RiderPhone = d.Rider.Phone
		}
	}
	return resp
}

// Current handles GET /api/rides/current
func (h *RideHandler) Current(c *gin.Context) {
	caller := middleware.CurrentAccount(c)
	details, err := h.rideService.CurrentRide(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newRideResponse(details, caller, caller.Role.IsDriver()))
}

// GetRide handles GET /api/rides/:rideId
func (h *RideHandler) GetRide(c *gin.Context) {
	caller := middleware.CurrentAccount(c)
	details, err := h.rideService.GetRide(c.Request.Context(), caller, c.Param("rideId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, newRideResponse(details, caller, true))
}

// HistoryItem is one ride in the history listing.
type HistoryItem struct {
	ID          string     `json:"id"`
	Pickup      string     `json:"pickup"`
	Destination string     `json:"destination"`
	Fare        float64    `json:"fare"`
	Distance    float64    `json:"distance"`
	VehicleType string     `json:"vehicleType"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
	Rating      *int       `json:"rating"`
}

// HistoryResponse is the HTTP response for the ride history.
type HistoryResponse struct {
	Rides   []HistoryItem `json:"rides"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// History handles GET /api/rides/history
func (h *RideHandler) History(c *gin.Context) {
	limit := queryInt(c, "limit", 10)
	skip := queryInt(c, "skip", 0)

	history, err := h.rideService.History(c.Request.Context(), middleware.CurrentAccount(c), limit, skip)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]HistoryItem, 0, len(history.Rides))
	for _, r := range history.Rides {
		item := HistoryItem{
			ID:          r.ID,
			Pickup:      orDefault(r.Pickup.Address, "Unknown location"),
			Destination: orDefault(r.Destination.Address, "Unknown destination"),
			Fare:        r.Fare,
			Distance:    r.DistanceKm,
			VehicleType: orDefault(r.VehicleType, "Car"),
			Status:      string(r.Status),
			CreatedAt:   r.CreatedAt,
			Rating:      r.Rating,
		}
		if !r.CompletedAt.IsZero() {
			completed := r.CompletedAt
			item.CompletedAt = &completed
		}
		items = append(items, item)
	}

	respondJSON(c, http.StatusOK, HistoryResponse{Rides: items, Total: history.Total, HasMore: history.HasMore})
}

// StatusResponse is the HTTP response for the rider's latest ride status.
type StatusResponse struct {
	Status string                 `json:"status"`
	Driver *service.DriverSummary `json:"driver,omitempty"`
}

// Status handles GET /api/rides/status
func (h *RideHandler) Status(c *gin.Context) {
	details, err := h.rideService.LatestStatus(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if details == nil {
		respondJSON(c, http.StatusOK, StatusResponse{Status: "searching"})
		return
	}
	respondJSON(c, http.StatusOK, StatusResponse{
		Status: string(details.Ride.Status),
		Driver: service.NewDriverSummary(details.Driver),
	})
}

// StatsResponse is the HTTP response for the rider's spending summary.
type StatsResponse struct {
	TotalRides int     `json:"totalRides"`
	TotalSpent float64 `json:"totalSpent"`
	Rating     *string `json:"rating"`
}

// Stats handles GET /api/rides/stats
func (h *RideHandler) Stats(c *gin.Context) {
	summary, err := h.rideService.RiderStats(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := StatsResponse{
		TotalRides: summary.CompletedRides,
		TotalSpent: math.Round(summary.TotalSpent),
	}
	if summary.AverageRating != nil {
		rating := strconv.FormatFloat(*summary.AverageRating, 'f', 1, 64)
		resp.Rating = &rating
	}
	respondJSON(c, http.StatusOK, resp)
}

// Route handles GET /api/rides/route?pickup=lon,lat&drop=lon,lat
func (h *RideHandler) Route(c *gin.Context) {
	pickupRaw, dropRaw := c.Query("pickup"), c.Query("drop")
	if pickupRaw == "" || dropRaw == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Pickup and drop coordinates required"})
		return
	}

	pickup, err := parseLonLat(pickupRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid coordinates"})
		return
	}
	drop, err := parseLonLat(dropRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid coordinates"})
		return
	}

	respondJSON(c, http.StatusOK, h.router.Route(c.Request.Context(), pickup, drop))
}

// GeocodeRequest is the HTTP request body for reverse geocoding.
type GeocodeRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Geocode handles POST /api/rides/geocode
func (h *RideHandler) Geocode(c *gin.Context) {
	var req GeocodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lon == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Latitude and longitude required"})
		return
	}
	respondJSON(c, http.StatusOK, h.geocoder.ReverseGeocode(c.Request.Context(), *req.Lat, *req.Lon))
}

// ClearActive handles POST /api/rides/clear-active
func (h *RideHandler) ClearActive(c *gin.Context) {
	cleared, err := h.rideService.ClearActive(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "count": len(cleared)})
}

// RideStatusBrief is the minimal ride shape returned by transitions.
type RideStatusBrief struct {
	ID          string     `json:"_id"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TransitionResponse is the HTTP response for arrive, start and cancel.
type TransitionResponse struct {
	Message string          `json:"message"`
	Ride    RideStatusBrief `json:"ride"`
}

// AcceptedRide is the ride as returned to the accepting driver.
type AcceptedRide struct {
	ID          string        `json:"_id"`
	Status      string        `json:"status"`
	OTP         string        `json:"otp"`
	Pickup      PlaceResponse `json:"pickup"`
	Destination PlaceResponse `json:"destination"`
	VehicleType string        `json:"vehicleType"`
	Fare        float64       `json:"fare"`
	Distance    float64       `json:"distance"`
	Duration    int           `json:"duration"`
	RiderName   string        `json:"riderName"`
	RiderPhone  string        `json:"riderPhone,omitempty"`
}

// Accept handles POST /api/rides/:rideId/accept
func (h *RideHandler) Accept(c *gin.Context) {
	result, err := h.rideService.AcceptRide(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"))
	if err != nil {
		respondError(c, err)
		return
	}

	r := result.Ride
	respondJSON(c, http.StatusOK, gin.H{
		"message": "Ride accepted successfully",
		"ride": AcceptedRide{
			ID:          r.ID,
			Status:      string(r.Status),
			OTP:         r.OTP,
			Pickup:      newPlaceResponse(r.Pickup),
			Destination: newPlaceResponse(r.Destination),
			VehicleType: r.VehicleType,
			Fare:        r.Fare,
			Distance:    r.DistanceKm,
			Duration:    r.DurationMin,
			RiderName:   orDefault(result.Rider.Name, defaultRiderName),
			RiderPhone:  result.Rider.Phone,
		},
	})
}

// Arrived handles POST /api/rides/:rideId/arrived
func (h *RideHandler) Arrived(c *gin.Context) {
	ride, err := h.rideService.MarkArrived(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, TransitionResponse{
		Message: "Arrival marked successfully",
		Ride:    RideStatusBrief{ID: ride.ID, Status: string(ride.Status)},
	})
}

// StartRideRequest is the HTTP request body for starting a ride.
type StartRideRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// Start handles POST /api/rides/:rideId/start
func (h *RideHandler) Start(c *gin.Context) {
	var req StartRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ride, err := h.rideService.StartRide(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"), strings.TrimSpace(req.OTP))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, TransitionResponse{
		Message: "Ride started successfully",
		Ride:    RideStatusBrief{ID: ride.ID, Status: string(ride.Status)},
	})
}

// CompleteRideResponse is the HTTP response for completing a ride.
type CompleteRideResponse struct {
	Message string          `json:"message"`
	Ride    CompletedRide   `json:"ride"`
	Stats   CompletionStats `json:"stats"`
}

// CompletedRide is the completed ride with its payment outcome.
type CompletedRide struct {
	ID            string    `json:"_id"`
	Status        string    `json:"status"`
	CompletedAt   time.Time `json:"completedAt"`
	Fare          float64   `json:"fare"`
	PaymentMethod string    `json:"paymentMethod"`
	PaymentStatus string    `json:"paymentStatus"`
}

// CompletionStats carries both parties' running totals.
type CompletionStats struct {
	Driver DriverTotals `json:"driver"`
	Rider  RiderTotals  `json:"rider"`
}

// DriverTotals is a driver's running totals.
type DriverTotals struct {
	TotalRides     int     `json:"totalRides"`
	CompletedRides int     `json:"completedRides"`
	TotalEarnings  float64 `json:"totalEarnings"`
}

// RiderTotals is a rider's running totals.
type RiderTotals struct {
	TotalRides     int `json:"totalRides"`
	CompletedRides int `json:"completedRides"`
}

// Complete handles POST /api/rides/:rideId/complete
func (h *RideHandler) Complete(c *gin.Context) {
	result, err := h.rideService.CompleteRide(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"))
	if err != nil {
		respondError(c, err)
		return
	}

	r := result.Ride
	respondJSON(c, http.StatusOK, CompleteRideResponse{
		Message: "Ride completed successfully",
		Ride: CompletedRide{
			ID:            r.ID,
			Status:        string(r.Status),
			CompletedAt:   r.CompletedAt,
			Fare:          r.Fare,
			PaymentMethod: string(r.PaymentMethod),
			PaymentStatus: string(r.PaymentStatus),
		},
		Stats: CompletionStats{
			Driver: DriverTotals{
				TotalRides:     result.DriverStats.TotalRides,
				CompletedRides: result.DriverStats.CompletedRides,
				TotalEarnings:  result.DriverStats.TotalEarnings,
			},
			Rider: RiderTotals{
				TotalRides:     result.RiderStats.TotalRides,
				CompletedRides: result.RiderStats.CompletedRides,
			},
		},
	})
}

// Cancel handles POST /api/rides/:rideId/cancel
func (h *RideHandler) Cancel(c *gin.Context) {
	ride, err := h.rideService.CancelRide(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, TransitionResponse{
		Message: "Ride cancelled successfully",
		Ride:    RideStatusBrief{ID: ride.ID, Status: string(ride.Status)},
	})
}

// RateRideRequest is the HTTP request body for rating a ride.
type RateRideRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback" binding:"max=1000"`
}

// RateRideResponse is the HTTP response for rating a ride.
type RateRideResponse struct {
	Message      string   `json:"message"`
	Rating       int      `json:"rating"`
	Feedback     string   `json:"feedback"`
	DriverRating *float64 `json:"driverRating"`
}

// Rate handles POST /api/rides/:rideId/rate
func (h *RideHandler) Rate(c *gin.Context) {
	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.rideService.RateRide(c.Request.Context(), middleware.CurrentAccount(c), c.Param("rideId"), req.Rating, req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RateRideResponse{
		Message:      "Rating submitted successfully",
		Rating:       req.Rating,
		Feedback:     result.Ride.Feedback,
		DriverRating: result.DriverRating,
	})
}

// AdminActive handles GET /api/rides/admin/active
func (h *RideHandler) AdminActive(c *gin.Context) {
	summary, err := h.rideService.AdminActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"success":  true,
		"count":    summary.Count,
		"statuses": summary.Statuses,
	})
}

// AdminParty is a ride participant in the admin listing.
type AdminParty struct {
	ID      string          `json:"_id"`
	Name    string          `json:"name"`
	Email   string          `json:"email,omitempty"`
	Phone   string          `json:"phone,omitempty"`
	Vehicle *domain.Vehicle `json:"vehicle,omitempty"`
}

func newAdminParty(a *domain.Account, withVehicle bool) *AdminParty {
	if a == nil {
		return nil
	}
	p := &AdminParty{ID: a.ID, Name: a.Name, Email: a.Email, Phone: a.Phone}
	if withVehicle {
		p.Vehicle = a.Vehicle
	}
	return p
}

// AdminRide is a ride in the admin listing.
type AdminRide struct {
	ID            string        `json:"_id"`
	RiderID       string        `json:"riderId"`
	DriverID      string        `json:"driverId,omitempty"`
	Status        string        `json:"status"`
	Pickup        PlaceResponse `json:"pickup"`
	Destination   PlaceResponse `json:"destination"`
	VehicleType   string        `json:"vehicleType"`
	Fare          float64       `json:"fare"`
	Distance      float64       `json:"distance"`
	PaymentMethod string        `json:"paymentMethod"`
	PaymentStatus string        `json:"paymentStatus"`
	Rating        *int          `json:"rating,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	Driver        *AdminParty   `json:"driver"`
	Rider         *AdminParty   `json:"rider"`
}

// AdminAll handles GET /api/rides/admin/all
func (h *RideHandler) AdminAll(c *gin.Context) {
	rides, err := h.rideService.AdminAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]AdminRide, 0, len(rides))
	for _, d := range rides {
		r := d.Ride
		out = append(out, AdminRide{
			ID:            r.ID,
			RiderID:       r.RiderID,
			DriverID:      r.DriverID,
			Status:        string(r.Status),
			Pickup:        newPlaceResponse(r.Pickup),
			Destination:   newPlaceResponse(r.Destination),
			VehicleType:   r.VehicleType,
			Fare:          r.Fare,
			Distance:      r.DistanceKm,
			PaymentMethod: string(r.PaymentMethod),
			PaymentStatus: string(r.PaymentStatus),
			Rating:        r.Rating,
			CreatedAt:     r.CreatedAt,
			Driver:        newAdminParty(d.Driver, true),
			Rider:         newAdminParty(d.Rider, false),
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "rides": out, "count": len(out)})
}

// AdminCount handles GET /api/rides/admin/count
func (h *RideHandler) AdminCount(c *gin.Context) {
	n, err := h.rideService.AdminCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "count": n})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseLonLat parses an OSRM-style "lon,lat" pair.
func parseLonLat(s string) (estimator.Point, error) {
	lonRaw, latRaw, ok := strings.Cut(s, ",")
	if !ok {
		return estimator.Point{}, fmt.Errorf("malformed coordinate %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
	if err != nil {
		return estimator.Point{}, err
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return estimator.Point{}, err
	}
	p := estimator.Point{Lat: lat, Lng: lon}
	if !p.Valid() {
		return estimator.Point{}, fmt.Errorf("coordinate out of range %q", s)
	}
	return p, nil
}
