package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/services"
)

type SecurityHandler struct {
	events *services.SecurityEventService
}

func NewSecurityHandler(events *services.SecurityEventService) *SecurityHandler {
	return &SecurityHandler{events: events}
}

// Events lists audit entries on the security allow-list. It accepts the same
// filters as the audit log.
func (h *SecurityHandler) Events(c *gin.Context) {
	f, ok := parseAuditFilter(c)
	if !ok {
		return
	}
	page, err := h.events.ListSecurityEvents(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SuspiciousOrigins runs the failed-login detector. window (a Go duration),
// threshold and end (RFC3339) override the configured defaults.
func (h *SecurityHandler) SuspiciousOrigins(c *gin.Context) {
	window, threshold := h.events.Defaults()

	if raw := strings.TrimSpace(c.Query("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			badRequest(c, "window must be a duration such as 24h")
			return
		}
		window = d
	}
	if _, set := c.GetQuery("threshold"); set {
		v, err := queryInt(c, "threshold")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		threshold = v
	}
	end := time.Now()
	if t, err := queryTime(c, "end"); err != nil {
		badRequest(c, err.Error())
		return
	} else if t != nil {
		end = *t
	}

	origins, err := h.events.DetectSuspiciousOrigins(c.Request.Context(), end, window, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"window":    window.String(),
		"threshold": threshold,
		"origins":   origins,
	})
}
