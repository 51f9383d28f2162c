package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-apartment-rentals/shared/rental"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Reason is a machine-readable code for rejected requests
	Reason string `json:"reason,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// RejectionResponse sends an error response carrying a reason code
func RejectionResponse(c *gin.Context, statusCode int, reason, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   message,
		Reason:  reason,
	})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

// ForbiddenResponse sends a 403 Forbidden response
func ForbiddenResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, message)
}

// InternalServerErrorResponse sends a 500 Internal Server Error response
func InternalServerErrorResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}

// ServiceUnavailableResponse sends a 503 Service Unavailable response
func ServiceUnavailableResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, message)
}

// CreatedResponse sends a 201 Created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusCreated, message, data)
}

// OKResponse sends a 200 OK response
func OKResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusOK, message, data)
}

// StatusForError maps a rental domain error to its HTTP status
func StatusForError(err error) int {
	switch {
	case rental.IsValidation(err):
		return http.StatusBadRequest
	case rental.IsNotFound(err):
		return http.StatusNotFound
	case rental.IsRejection(err):
		return http.StatusConflict
	case errors.Is(err, rental.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// DomainErrorResponse renders a rental domain error. Infrastructure failures
// are reported with fallback so internal details never reach the client.
func DomainErrorResponse(c *gin.Context, err error, fallback string) {
	status := StatusForError(err)
	switch status {
	case http.StatusInternalServerError:
		InternalServerErrorResponse(c, fallback)
	case http.StatusServiceUnavailable:
		ServiceUnavailableResponse(c, "Apartment is busy, please retry")
	default:
		RejectionResponse(c, status, rental.ReasonCode(err), err.Error())
	}
}
