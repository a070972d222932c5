package http

import (
	"errors"
	"net/http"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/auth"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/domain"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/service"
	"github.com/gin-gonic/gin"
)

var errRateLimited = errors.New("rate limit exceeded")

type errorClass struct {
	target error
	status int
}

var errorClasses = []errorClass{
	{service.ErrUnauthenticated, http.StatusUnauthorized},
	{auth.ErrMissingCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrInvalidAction, http.StatusBadRequest},
	{domain.ErrInvalidRole, http.StatusBadRequest},
	{service.ErrSessionIDRequired, http.StatusBadRequest},
	{service.ErrSessionIDTooLong, http.StatusBadRequest},
	{service.ErrSignalRequired, http.StatusBadRequest},
	{service.ErrRoleRequired, http.StatusBadRequest},
	{service.ErrGuestNameTooLong, http.StatusBadRequest},
	{service.ErrGuestsDisabled, http.StatusForbidden},
	{repository.ErrSessionFull, http.StatusForbidden},
	{errRateLimited, http.StatusTooManyRequests},
	{repository.ErrCapacityExceeded, http.StatusServiceUnavailable},
}

// errorResponse maps err to a status code and a client-facing message.
// Known errors are reported by their sentinel text; anything else is an
// internal failure reported with its own message.
func errorResponse(err error) (int, gin.H) {
	if errors.Is(err, domain.ErrInvalidSignal) {
		return http.StatusBadRequest, gin.H{
			"error":   domain.ErrInvalidSignal.Error(),
			"details": err.Error(),
		}
	}
	for _, class := range errorClasses {
		if errors.Is(err, class.target) {
			return class.status, gin.H{"error": class.target.Error()}
		}
	}
	return http.StatusInternalServerError, gin.H{"error": err.Error()}
}
