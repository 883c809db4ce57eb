package handler

import (
	"net/http"

	"github.com/castgate/service"
	"github.com/gin-gonic/gin"
)

type ClaimHandler struct {
	svc *service.ClaimService
}

func NewClaimHandler(svc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

// GET /api/claim/status
func (h *ClaimHandler) Status(c *gin.Context) {
	userID := c.Query("userId")
	projectID := c.Query("scope")

	status, err := h.svc.Status(c.Request.Context(), userID, projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type claimSubmitRequest struct {
	UserID    string `json:"userId" binding:"required"`
	ProjectID string `json:"scope" binding:"required"`
	TxHash    string `json:"txHash" binding:"required"`
	Sender    string `json:"claimedSender"`
}

// POST /api/claim/submit
func (h *ClaimHandler) Submit(c *gin.Context) {
	var req claimSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION"})
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), req.UserID, req.ProjectID, req.TxHash, req.Sender)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}
