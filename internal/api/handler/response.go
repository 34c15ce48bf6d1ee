package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parking_garage/internal/api/middleware"
	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
	"parking_garage/internal/service"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoLotAvailable), errors.Is(err, domain.ErrConflict), errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrPlateNotRecognized):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal errors are logged
// and not echoed to the client.
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorBody(c, err))
}

func errorBody(c *gin.Context, err error) gin.H {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Named("http").Error("request failed",
			zap.String("path", c.FullPath()), zap.String("request_id", c.GetString(middleware.RequestIDKey)), zap.Error(err))
		_ = c.Error(err)
		return gin.H{"error": "internal server error"}
	}
	body := gin.H{"error": err.Error()}
	var pr *domain.PaymentRequiredError
	if errors.As(err, &pr) && pr.Bill != nil {
		body["bill"] = pr.Bill
	}
	return body
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// pathID parses a positive integer path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// actor is the authenticated caller.
func actor(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: c.GetInt(middleware.UserIDKey), Role: c.GetString(middleware.UserRoleKey)}
}
