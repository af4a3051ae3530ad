package handlers

import (
	"errors"
	"net/http"
	"strings"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService services.AuthService
	provisioner auth.Provisioner
	log         *zap.Logger
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewAuthHandler(authService services.AuthService, provisioner auth.Provisioner, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, provisioner: provisioner, log: log}
}

func (h *AuthHandler) session() *auth.Provider {
	return auth.NewProvider(h.authService, h.provisioner, h.log)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	session := h.session()
	err := session.SignIn(c.Request.Context(), req.Email, req.Password)
	h.respondSession(c, session, err, http.StatusOK)
}

// SignUp creates the account and provisions it before answering, so the
// returned session can use the task API right away.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	session := h.session()
	err := session.SignUp(c.Request.Context(), req.Name, req.Email, req.Password)
	h.respondSession(c, session, err, http.StatusCreated)
}

func (h *AuthHandler) respondSession(c *gin.Context, session *auth.Provider, err error, okStatus int) {
	current := session.Session()
	switch {
	case err == nil:
		c.JSON(okStatus, current)
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_credentials",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "email_taken",
			"message": err.Error(),
		})
	case current != nil:
		// Signed in, but provisioning did not finish.
		h.log.Warn("session issued without profile", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "provisioning_failed",
			"message": err.Error(),
			"session": current,
		})
	default:
		h.log.Error("authentication failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "authentication_failed",
			"message": "Failed to authenticate",
		})
	}
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
			return
		}
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		h.log.Debug("sign out with unusable refresh token", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

// Session reports the identity behind the bearer token and its profile.
func (h *AuthHandler) Session(c *gin.Context) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"user": nil, "profile": nil})
		return
	}
	identity, err := h.authService.VerifyAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	var profile *models.User
	profile, err = h.authService.LookupProfile(c.Request.Context(), identity.ID)
	if err != nil && !errors.Is(err, services.ErrProfileNotFound) {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity, "profile": profile})
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
