package handlers

import (
	"errors"
	"io"
	"net/http"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProvisionHandler serves the create-user function: a bearer-authenticated
// POST with an optional {"name": ...} body.
type ProvisionHandler struct {
	service *services.ProvisioningService
	log     *zap.Logger
}

func NewProvisionHandler(service *services.ProvisioningService, log *zap.Logger) *ProvisionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProvisionHandler{service: service, log: log}
}

// ProvisionCORS mirrors the headers browser clients send to the function.
func ProvisionCORS(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:              []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:              []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		OptionsResponseStatusCode: http.StatusOK,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (h *ProvisionHandler) Options(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *ProvisionHandler) CreateUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrNoAuthorization.Error()})
		return
	}
	token, _ := middleware.BearerToken(header)

	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("ignoring unreadable provisioning body", zap.Error(err))
	}

	if _, err := h.service.Provision(c.Request.Context(), token, normalizeName(body.Name)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
