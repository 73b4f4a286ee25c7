package models

import "time"

// SendOTPRequest payload to issue a code for a phone number or email address
type SendOTPRequest struct {
	Destination string  `json:"destination" binding:"required,max=255"`
	Channel     Channel `json:"channel,omitempty" binding:"omitempty,oneof=sms email"`
}

// SendOTPResponse is returned after a code was issued (without exposing the value)
type SendOTPResponse struct {
	Destination string    `json:"destination"`
	Channel     Channel   `json:"channel"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyOTPRequest payload to verify a code. Code format is checked by the service
// so a malformed code never consumes an attempt.
type VerifyOTPRequest struct {
	Destination string `json:"destination" binding:"required,max=255"`
	Code        string `json:"code" binding:"required"`
}

// VerifyOTPResponse indicates verification result
type VerifyOTPResponse struct {
	Destination string  `json:"destination"`
	Channel     Channel `json:"channel"`
}
