package handler

import (
	"net/http"
	"strconv"

	"github.com/castgate/service"
	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	svc *service.FeedbackService
}

func NewFeedbackHandler(svc *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

// GET /api/feedback/status
func (h *FeedbackHandler) Status(c *gin.Context) {
	userID := c.Query("userId")

	status, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/feedback/entries
func (h *FeedbackHandler) Entries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	entries, err := h.svc.Entries(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type feedbackSubmitRequest struct {
	UserID  string `json:"userId" binding:"required"`
	Message string `json:"message" binding:"required"`
	TxHash  string `json:"txHash" binding:"required"`
	Sender  string `json:"claimedSender"`
}

// POST /api/feedback/submit
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req feedbackSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "VALIDATION"})
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), req.UserID, req.Message, req.TxHash, req.Sender)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}
