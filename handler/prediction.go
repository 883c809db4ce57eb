package handler

import (
	"net/http"

	"github.com/castgate/service"
	"github.com/gin-gonic/gin"
)

type PredictionHandler struct {
	svc *service.PredictionService
}

func NewPredictionHandler(svc *service.PredictionService) *PredictionHandler {
	return &PredictionHandler{svc: svc}
}

// GET /api/prediction/status
func (h *PredictionHandler) Status(c *gin.Context) {
	userID := c.Query("userId")
	round := c.Query("scope")

	status, err := h.svc.Status(c.Request.Context(), userID, round)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type predictionSubmitRequest struct {
	UserID      string `json:"userId" binding:"required"`
	Round       string `json:"scope"`
	CandidateID string `json:"candidateId" binding:"required"`
	TxHash      string `json:"txHash" binding:"required"`
	Sender      string `json:"claimedSender"`
}

// POST /api/prediction/submit
func (h *PredictionHandler) Submit(c *gin.Context) {
	var req predictionSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION"})
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), req.UserID, req.Round, req.CandidateID, req.TxHash, req.Sender)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}
