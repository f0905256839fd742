package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService) *DriverHandler {
	return &DriverHandler{driverService: driverService}
}

type coordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
// Both {location:{lat,lng}} and {lat,lng} are accepted.
type UpdateLocationRequest struct {
	Location *coordinates `json:"location"`
	coordinates
}

func (r *UpdateLocationRequest) resolve() (lat, lng float64, ok bool) {
	c := r.coordinates
	if r.Location != nil {
		c = *r.Location
	}
	if c.Lat == nil || c.Lng == nil {
		return 0, 0, false
	}
	return *c.Lat, *c.Lng, true
}

// UpdateLocation handles POST /api/driver/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	lat, lng, ok := req.resolve()
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Location coordinates required"})
		return
	}

	account := middleware.CurrentAccount(c)
	if !account.Role.IsDriver() {
		respondError(c, service.ErrForbiddenRole)
		return
	}

	err := h.driverService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: account.ID,
		Lat:      lat,
		Lng:      lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"message": "Location updated successfully"})
}
