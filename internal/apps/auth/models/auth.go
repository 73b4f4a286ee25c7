package models

import (
	"time"

	usermodels "bell-backend/internal/apps/user/models"
)

// OTPLoginRequest exchanges a verified code for a session token
type OTPLoginRequest struct {
	Destination string `json:"destination" binding:"required,max=255"`
	Code        string `json:"code" binding:"required"`
}

// OTPLoginResponse carries the session token and the logged in user
type OTPLoginResponse struct {
	Token     string                  `json:"token"`
	ExpiresAt time.Time               `json:"expires_at"`
	User      usermodels.UserResponse `json:"user"`
}
