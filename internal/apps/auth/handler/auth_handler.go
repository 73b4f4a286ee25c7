package handler

import (
	"net/http"

	"bell-backend/internal/apps/auth/models"
	"bell-backend/internal/apps/auth/service"
	otphandler "bell-backend/internal/apps/otp/handler"
	"bell-backend/internal/common/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login endpoints
type AuthHandler struct {
	service service.AuthService
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginWithOTP handles POST /api/v1/auth/otp/login
func (h *AuthHandler) LoginWithOTP(c *gin.Context) {
	var req models.OTPLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.LoginWithOTP(c.Request.Context(), req.Destination, req.Code)
	if err != nil {
		response.Internal(c, err)
		return
	}
	if res.Session == nil {
		otphandler.WriteVerifyFailure(c, res.Verify)
		return
	}

	response.Success(c, http.StatusOK, res.Session)
}

// RegisterAuthRoutes registers all auth routes
func RegisterAuthRoutes(router *gin.RouterGroup, handler *AuthHandler) {
	auth := router.Group("/auth")
	{
		auth.POST("/otp/login", handler.LoginWithOTP)
	}
}
