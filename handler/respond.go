package handler

import (
	"errors"
	"net/http"

	"github.com/castgate/service"
	"github.com/gin-gonic/gin"
)

// writeError maps the service taxonomy onto HTTP so clients branch on the
// code field, never on message text. NOT_CONFIRMED is a retry signal
// (202), not a failure.
func writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var invalidErr *service.InvalidProofError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg, "code": "VALIDATION"})
	case errors.Is(err, service.ErrNotYetConfirmed):
		c.JSON(http.StatusAccepted, gin.H{"error": err.Error(), "code": "NOT_CONFIRMED", "retry": true})
	case errors.As(err, &invalidErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalidErr.Reason, "code": "INVALID_PROOF"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "CONFLICT"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
	}
}
