package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/api/middleware"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/permissions"
	"github.com/tillpoint/controlplane/internal/services"
)

type AuthHandler struct {
	auth          *services.AuthService
	accounts      *services.AccountService
	audit         *services.AuditService
	sessionTTL    time.Duration
	secureCookies bool
}

func NewAuthHandler(auth *services.AuthService, accounts *services.AccountService, audit *services.AuditService, sessionTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		accounts:      accounts,
		audit:         audit,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
	}
}

// setSessionCookie sets the HttpOnly, SameSite=Strict auth cookie. Secure is
// on outside development.
func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookieName, value, maxAge, "/", "", h.secureCookies, true)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token, acct, err := h.auth.Login(c.Request.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Code:      req.Code,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if errors.Is(err, services.ErrMFARequired) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "mfa_required": true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, token, int(h.sessionTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"token": token, "account": acct})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context(), c.GetString(middleware.SessionIDKey), actorFromContext(c))
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the caller's account and the permissions its role grants.
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := callerID(c)
	acct, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     acct,
		"permissions": permissions.Permissions(acct.Role),
	})
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, _ := callerID(c)
	if err := h.accounts.ChangePassword(c.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			badRequest(c, "current password is incorrect")
			return
		}
		respondError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), actorFromContext(c).Entry(models.AuditActionPasswordChange, models.ResourceAdminAccount, idStr(id)))
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}
