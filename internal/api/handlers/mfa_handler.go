package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tillpoint/controlplane/internal/services"
)

// MFAHandler lets the signed-in admin enroll in and leave MFA.
type MFAHandler struct {
	mfa *services.MFAService
}

func NewMFAHandler(mfa *services.MFAService) *MFAHandler {
	return &MFAHandler{mfa: mfa}
}

func (h *MFAHandler) Setup(c *gin.Context) {
	id, _ := callerID(c)
	setup, err := h.mfa.BeginSetup(c.Request.Context(), id, actorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

type VerifyMFARequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *MFAHandler) Verify(c *gin.Context) {
	var req VerifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, _ := callerID(c)
	if err := h.mfa.Verify(c.Request.Context(), id, req.Code, actorFromContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mfa_state": "enabled"})
}

func (h *MFAHandler) Disable(c *gin.Context) {
	id, _ := callerID(c)
	if err := h.mfa.Disable(c.Request.Context(), id, actorFromContext(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mfa_state": "disabled"})
}
