package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterOTPRoutes registers all OTP routes
func RegisterOTPRoutes(router *gin.RouterGroup, otpHandler *OTPHandler) {
	otp := router.Group("/otp")
	{
		otp.POST("/send", otpHandler.SendOTP)
		otp.POST("/verify", otpHandler.VerifyOTP)
	}
}
