package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

type AlertHandler struct {
	alerts  *services.AlertService
	audit   *services.AuditService
	horizon time.Duration
}

func NewAlertHandler(alerts *services.AlertService, audit *services.AuditService, horizon time.Duration) *AlertHandler {
	return &AlertHandler{alerts: alerts, audit: audit, horizon: horizon}
}

func (h *AlertHandler) List(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context(), services.AlertFilter{
		Status: models.AlertStatus(c.Query("status")),
		Type:   c.Query("type"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type CreateAlertRequest struct {
	Type       string               `json:"type" binding:"required"`
	Severity   models.AlertSeverity `json:"severity" binding:"required"`
	Message    string               `json:"message" binding:"required"`
	ResourceID string               `json:"resource_id"`
}

func (h *AlertHandler) Create(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	alert, err := h.alerts.CreateAlert(c.Request.Context(), services.CreateAlertInput{
		Type:       req.Type,
		Severity:   req.Severity,
		Message:    req.Message,
		ResourceID: req.ResourceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), actorFromContext(c).
		Entry(models.AuditActionCreate, models.ResourceAlert, alert.ID).
		WithDetails(gin.H{"type": alert.Type, "severity": alert.Severity}))
	c.JSON(http.StatusCreated, alert)
}

// Scan runs the license expiry scan now instead of waiting for the schedule.
func (h *AlertHandler) Scan(c *gin.Context) {
	created, err := h.alerts.ScanLicenseExpiry(c.Request.Context(), time.Now(), h.horizon)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

type UpdateAlertStatusRequest struct {
	Status models.AlertStatus `json:"status" binding:"required"`
}

func (h *AlertHandler) UpdateStatus(c *gin.Context) {
	var req UpdateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	alert, err := h.alerts.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), actorFromContext(c).
		Entry(models.AuditActionUpdate, models.ResourceAlert, id).
		WithDetails(gin.H{"status": alert.Status}))
	c.JSON(http.StatusOK, alert)
}

func (h *AlertHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.alerts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record(c.Request.Context(), actorFromContext(c).Entry(models.AuditActionDelete, models.ResourceAlert, id))
	c.Status(http.StatusNoContent)
}
