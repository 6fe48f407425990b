package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

func TestTenantHandler_DeleteAndLicenses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	admin := newAccount(t, db, "root@example.com", models.RoleSuperAdmin)
	tenant := models.Tenant{UUID: "t-1", Name: "Corner Cafe", Active: true}
	require.NoError(t, db.Create(&tenant).Error)
	require.NoError(t, db.Create(&models.License{
		UUID: "l-1", TenantID: tenant.ID, Plan: "basic", Status: models.LicenseStatusSuspended,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}).Error)

	h := NewTenantHandler(services.NewTenantService(db), services.NewAuditService(db))
	r := gin.New()
	r.Use(asAccount(admin))
	r.GET("/tenants", h.List)
	r.DELETE("/tenants/:id", h.Delete)
	r.GET("/licenses", h.ListLicenses)

	w := doJSON(r, http.MethodGet, "/licenses?status=suspended", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uuid":"l-1"`)
	w = doJSON(r, http.MethodGet, "/licenses?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"uuid":"l-1"`)

	w = doJSON(r, http.MethodDelete, "/tenants/"+idStr(tenant.ID)+"?reason=churned", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = doJSON(r, http.MethodDelete, "/tenants/"+idStr(tenant.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodDelete, "/tenants/0", nil).Code)

	rows := auditRows(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AuditActionDelete, rows[0].Action)
	assert.Equal(t, models.ResourceTenant, rows[0].ResourceType)
	assert.Equal(t, "churned", rows[0].Reason)
	assert.JSONEq(t, `{"name":"Corner Cafe"}`, rows[0].Details)

	w = doJSON(r, http.MethodGet, "/tenants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
