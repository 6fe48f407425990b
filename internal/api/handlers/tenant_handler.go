package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

type TenantHandler struct {
	tenants *services.TenantService
	audit   *services.AuditService
}

func NewTenantHandler(tenants *services.TenantService, audit *services.AuditService) *TenantHandler {
	return &TenantHandler{tenants: tenants, audit: audit}
}

func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenants)
}

// Delete removes a tenant with its licenses. An optional ?reason= is kept in
// the audit entry.
func (h *TenantHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tenant, err := h.tenants.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record(c.Request.Context(), actorFromContext(c).
		Entry(models.AuditActionDelete, models.ResourceTenant, idStr(id)).
		WithDetails(gin.H{"name": tenant.Name}).
		WithReason(c.Query("reason")))
	c.Status(http.StatusNoContent)
}

func (h *TenantHandler) ListLicenses(c *gin.Context) {
	licenses, err := h.tenants.ListLicenses(c.Request.Context(), models.LicenseStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, licenses)
}
