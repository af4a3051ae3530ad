package handlers

import (
	"errors"
	"net/http"

	"taskflow/backend/internal/services"
	"taskflow/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// handleServiceError maps service and store errors onto HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTask),
		errors.Is(err, services.ErrInvalidCategory),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage temporarily unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
