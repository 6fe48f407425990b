package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// parseAuditFilter reads actor_id, action, resource_type, resource_id, from,
// to, page and limit from the query string.
func parseAuditFilter(c *gin.Context) (services.AuditFilter, bool) {
	var f services.AuditFilter

	if raw := strings.TrimSpace(c.Query("actor_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid actor_id")
			return f, false
		}
		actor := uint(id)
		f.ActorID = &actor
	}
	if raw := c.Query("action"); raw != "" {
		action, ok := models.ParseAuditAction(raw)
		if !ok {
			badRequest(c, "unknown audit action "+strconv.Quote(raw))
			return f, false
		}
		f.Action = action
	}
	f.ResourceType = strings.TrimSpace(c.Query("resource_type"))
	f.ResourceID = strings.TrimSpace(c.Query("resource_id"))

	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	if f.Page, err = queryInt(c, "page"); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, err.Error())
		return f, false
	}
	return f, true
}

// List returns audit entries newest first.
func (h *AuditHandler) List(c *gin.Context) {
	f, ok := parseAuditFilter(c)
	if !ok {
		return
	}
	page, err := h.audit.Query(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
