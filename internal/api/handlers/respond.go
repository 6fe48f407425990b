package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/api/middleware"
	"github.com/tillpoint/controlplane/internal/services"
)

// respondError maps service failures onto HTTP statuses. Unexpected errors
// are logged and reported without detail.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrAuthorizationDenied):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrDependencyUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrMFARequired),
		errors.Is(err, services.ErrSessionInvalid):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		middleware.GetRequestLogger(c).WithError(err).Error("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	if status == http.StatusServiceUnavailable {
		middleware.GetRequestLogger(c).WithError(err).Warn("dependency unavailable")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// actorFromContext describes the authenticated caller for the audit trail.
func actorFromContext(c *gin.Context) services.Actor {
	actor := services.Actor{
		Email:     c.GetString(middleware.EmailKey),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if v, ok := c.Get(middleware.AccountIDKey); ok {
		if id, ok := v.(uint); ok {
			actor.ID = &id
		}
	}
	return actor
}

func callerID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(middleware.AccountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}

func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(name + " must be an RFC3339 timestamp")
	}
	return &t, nil
}
