package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// AccountHandler handles sign-in, profile and saved-place requests.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// UserResponse is an account as shown to its owner.
type UserResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Role          string          `json:"role"`
	Gender        string          `json:"gender,omitempty"`
	Avatar        string          `json:"avatar,omitempty"`
	Vehicle       *domain.Vehicle `json:"vehicle,omitempty"`
	License       string          `json:"license,omitempty"`
	EmailVerified bool            `json:"emailVerified"`
	PhoneVerified bool            `json:"phoneVerified"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func newUserResponse(a *domain.Account) UserResponse {
	return UserResponse{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		Role:          string(a.Role),
		Gender:        a.Gender,
		Avatar:        a.Avatar,
		Vehicle:       a.Vehicle,
		License:       a.License,
		EmailVerified: a.EmailVerified,
		PhoneVerified: a.PhoneVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// SessionRequest is the HTTP request body for signing in.
type SessionRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// SessionResponse is the HTTP response for signing in.
type SessionResponse struct {
	Success   bool         `json:"success"`
	User      UserResponse `json:"user"`
	IsNewUser bool         `json:"isNewUser"`
	Token     string       `json:"token"`
}

// Session handles POST /api/auth/session
func (h *AccountHandler) Session(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.accountService.Login(c.Request.Context(), req.IDToken)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SessionResponse{
		Success:   true,
		User:      newUserResponse(result.Account),
		IsNewUser: result.IsNewUser,
		Token:     result.Token,
	})
}

// ProfileRequest is the HTTP request body for completing or updating a profile.
type ProfileRequest struct {
	Name    string          `json:"name" binding:"max=100"`
	Phone   string          `json:"phone" binding:"max=20"`
	Role    string          `json:"role" binding:"omitempty,oneof=rider driver captain"`
	Gender  string          `json:"gender" binding:"max=20"`
	Avatar  string          `json:"avatar" binding:"max=2048"`
	Vehicle *domain.Vehicle `json:"vehicle"`
	License string          `json:"license" binding:"max=50"`
}

func (r ProfileRequest) toService() service.ProfileRequest {
	return service.ProfileRequest{
		Name:    r.Name,
		Phone:   r.Phone,
		Role:    domain.Role(r.Role),
		Gender:  r.Gender,
		Avatar:  r.Avatar,
		Vehicle: r.Vehicle,
		License: r.License,
	}
}

// CompleteProfile handles POST /api/auth/complete-profile
func (h *AccountHandler) CompleteProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	account, err := h.accountService.CompleteProfile(c.Request.Context(), middleware.CurrentAccount(c), req.toService())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"success": true,
		"message": "Profile completed successfully!",
		"user":    newUserResponse(account),
	})
}

// UpdateProfile handles PUT /api/auth/profile
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	account, err := h.accountService.UpdateProfile(c.Request.Context(), middleware.CurrentAccount(c), req.toService())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "user": newUserResponse(account)})
}

// LinkPhoneRequest carries a phone sign-in token to attach to the caller.
type LinkPhoneRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	PhoneIDToken string `json:"phoneIdToken"`
}

// LinkPhone handles POST /api/auth/link-phone
func (h *AccountHandler) LinkPhone(c *gin.Context) {
	var req LinkPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	account, err := h.accountService.LinkPhone(c.Request.Context(), middleware.CurrentAccount(c), req.PhoneIDToken)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "user": newUserResponse(account)})
}

// AvatarRequest carries a new avatar.
type AvatarRequest struct {
	Avatar string `json:"avatar"`
}

// UpdateAvatar handles PUT /api/auth/avatar
func (h *AccountHandler) UpdateAvatar(c *gin.Context) {
	var req AvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	account, err := h.accountService.UpdateAvatar(c.Request.Context(), middleware.CurrentAccount(c), req.Avatar)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "avatar": account.Avatar})
}

// Me handles GET /api/auth/me
func (h *AccountHandler) Me(c *gin.Context) {
	account, err := h.accountService.Me(c.Request.Context(), middleware.CurrentAccount(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "user": newUserResponse(account)})
}

// Stats handles GET /api/auth/stats
func (h *AccountHandler) Stats(c *gin.Context) {
	account, err := h.accountService.Me(c.Request.Context(), middleware.CurrentAccount(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"stats": account.Stats, "role": account.Role})
}

// TodayStats handles GET /api/auth/stats/today
func (h *AccountHandler) TodayStats(c *gin.Context) {
	stats, err := h.accountService.Today(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"todayStats": stats})
}

// Places handles GET /api/auth/places
func (h *AccountHandler) Places(c *gin.Context) {
	account, err := h.accountService.Me(c.Request.Context(), middleware.CurrentAccount(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"savedPlaces": placesOrEmpty(account.SavedPlaces)})
}

// AddPlaceRequest is the HTTP request body for saving a place.
// Lon is accepted as an alias of Lng.
type AddPlaceRequest struct {
	Name    string   `json:"name" binding:"required,max=100"`
	Address string   `json:"address" binding:"max=500"`
	Lat     *float64 `json:"lat" binding:"required"`
	Lng     *float64 `json:"lng"`
	Lon     *float64 `json:"lon"`
}

func (r *AddPlaceRequest) longitude() *float64 {
	if r.Lng != nil {
		return r.Lng
	}
	return r.Lon
}

// AddPlace handles POST /api/auth/places
func (h *AccountHandler) AddPlace(c *gin.Context) {
	var req AddPlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	lng := req.longitude()
	if lng == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Name, lat, and lng are required"})
		return
	}

	places, added, err := h.accountService.AddPlace(c.Request.Context(), middleware.CurrentAccount(c).ID, service.AddPlaceRequest{
		Name:    req.Name,
		Address: req.Address,
		Lat:     *req.Lat,
		Lng:     *lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"success": true, "savedPlaces": placesOrEmpty(places)}
	if !added {
		resp["message"] = "Already saved"
	}
	respondJSON(c, http.StatusOK, resp)
}

// DeletePlaceRequest is the HTTP request body for deleting saved places.
type DeletePlaceRequest struct {
	Index *int     `json:"index"`
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Lon   *float64 `json:"lon"`
}

// DeletePlace handles DELETE /api/auth/places
func (h *AccountHandler) DeletePlace(c *gin.Context) {
	var req DeletePlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	lng := req.Lng
	if lng == nil {
		lng = req.Lon
	}

	places, err := h.accountService.DeletePlace(c.Request.Context(), middleware.CurrentAccount(c).ID, service.DeletePlaceRequest{
		Index: req.Index,
		Lat:   req.Lat,
		Lng:   lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "savedPlaces": placesOrEmpty(places)})
}

// AdminUser is an account in the admin user listing.
type AdminUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	PhoneVerified bool      `json:"phoneVerified"`
	JoinedDate    time.Time `json:"joinedDate"`
}

func newAdminUsers(accounts []*domain.Account) []AdminUser {
	out := make([]AdminUser, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, AdminUser{
			ID:            a.ID,
			Name:          a.Name,
			Email:         a.Email,
			Phone:         a.Phone,
			EmailVerified: a.EmailVerified,
			PhoneVerified: a.PhoneVerified,
			JoinedDate:    a.CreatedAt,
		})
	}
	return out
}

// AdminUsers handles GET /api/auth/admin/users
func (h *AccountHandler) AdminUsers(c *gin.Context) {
	dir, err := h.accountService.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"success":  true,
		"riders":   newAdminUsers(dir.Riders),
		"captains": newAdminUsers(dir.Captains),
	})
}

// Logout handles POST /api/auth/logout. Session tokens are stateless.
func (h *AccountHandler) Logout(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func placesOrEmpty(p []domain.SavedPlace) []domain.SavedPlace {
	if p == nil {
		return []domain.SavedPlace{}
	}
	return p
}
