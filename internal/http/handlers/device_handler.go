package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripshare/internal/types"
)

type DeviceTokens interface {
	Save(ctx context.Context, userID types.ID, token string) error
	Delete(ctx context.Context, userID types.ID, token string) error
}

// DeviceHandler registers push tokens for the caller.
type DeviceHandler struct {
	tokens DeviceTokens
}

func NewDeviceHandler(tokens DeviceTokens) *DeviceHandler {
	return &DeviceHandler{tokens: tokens}
}

type deviceReq struct {
	Token string `json:"token" binding:"required,max=4096"`
}

func (h *DeviceHandler) Register(c *gin.Context) {
	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.tokens.Save(c.Request.Context(), callerID(c), req.Token); err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) Unregister(c *gin.Context) {
	var req deviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.tokens.Delete(c.Request.Context(), callerID(c), req.Token); err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
