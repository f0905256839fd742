package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"rapidride/internal/identity"
	"rapidride/internal/repository"
	"rapidride/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FieldError describes one field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned when a request body fails binding.
type ValidationErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Unmapped errors are logged via gin and reported generically.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal server error"
	case errors.Is(err, service.ErrNoActiveRide):
		msg = "No active ride"
	}
	c.JSON(code, ErrorResponse{Error: msg})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// respondBindError reports a request body that could not be bound.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{Error: "invalid request body"})
		return
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldName(fe), Message: fieldMessage(fe)})
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{Error: "invalid request", Fields: fields})
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "numeric":
		return "must be numeric"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrRideNotFound),
		errors.Is(err, service.ErrNoActiveRide),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRideID),
		errors.Is(err, service.ErrInvalidPickupLocation),
		errors.Is(err, service.ErrInvalidDestinationLocation),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidTrafficLevel),
		errors.Is(err, service.ErrInvalidOTP),
		errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrIncompleteProfile),
		errors.Is(err, service.ErrInvalidPlace),
		errors.Is(err, service.ErrNotPhoneToken),
		errors.Is(err, service.ErrAvatarRequired),
		errors.Is(err, service.ErrChatEnded),
		errors.Is(err, service.ErrEmptyMessage):
		return http.StatusBadRequest

	// Authentication errors
	case errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrNoAccount):
		return http.StatusUnauthorized

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrNotRideParticipant),
		errors.Is(err, service.ErrForbiddenRole),
		errors.Is(err, service.ErrDriversOnly),
		errors.Is(err, service.ErrNotChatParticipant):
		return http.StatusForbidden

	// Conflict errors
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrRideAlreadyRated),
		errors.Is(err, service.ErrDriverHasActiveRide),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
