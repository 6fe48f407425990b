package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

// UserHandler manages admin accounts.
type UserHandler struct {
	accounts *services.AccountService
	mfa      *services.MFAService
	audit    *services.AuditService
}

func NewUserHandler(accounts *services.AccountService, mfa *services.MFAService, audit *services.AuditService) *UserHandler {
	return &UserHandler{accounts: accounts, mfa: mfa, audit: audit}
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (h *UserHandler) List(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

type CreateUserRequest struct {
	Email    string      `json:"email" binding:"required"`
	Name     string      `json:"name"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	acct, err := h.accounts.Create(c.Request.Context(), services.CreateAccountInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), actorFromContext(c).
		Entry(models.AuditActionCreate, models.ResourceAdminAccount, idStr(acct.ID)).
		WithDetails(gin.H{"email": acct.Email, "role": acct.Role}))
	c.JSON(http.StatusCreated, acct)
}

type UpdateUserRequest struct {
	Name   *string      `json:"name"`
	Role   *models.Role `json:"role"`
	Active *bool        `json:"active"`
	Reason string       `json:"reason"`
}

// Update changes name, role or active flag and records one audit entry
// holding the fields that changed: PERMISSION_CHANGE when the role moved,
// UPDATE otherwise. A request that changes nothing is not recorded.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if self, _ := callerID(c); self == id && req.Active != nil && !*req.Active {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot deactivate your own account"})
		return
	}

	acct, change, err := h.accounts.Update(c.Request.Context(), id, services.UpdateAccountInput{
		Name:   req.Name,
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if change.Any() {
		action := models.AuditActionUpdate
		details := gin.H{}
		if change.RoleChanged {
			action = models.AuditActionPermissionChange
			details["from"] = change.PreviousRole
			details["to"] = acct.Role
		}
		if change.NameChanged {
			details["name"] = acct.Name
		}
		if change.ActiveChanged {
			details["active"] = acct.Active
		}
		h.audit.Record(c.Request.Context(), actorFromContext(c).
			Entry(action, models.ResourceAdminAccount, idStr(id)).
			WithDetails(details).
			WithReason(req.Reason))
	}
	c.JSON(http.StatusOK, acct)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if self, _ := callerID(c); self == id {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete your own account"})
		return
	}
	if err := h.accounts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record(c.Request.Context(), actorFromContext(c).
		Entry(models.AuditActionDelete, models.ResourceAdminAccount, idStr(id)).
		WithReason(c.Query("reason")))
	c.Status(http.StatusNoContent)
}

// ResetMFA turns MFA off for another admin who lost their device.
func (h *UserHandler) ResetMFA(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.mfa.Disable(c.Request.Context(), id, actorFromContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mfa_state": "disabled"})
}
