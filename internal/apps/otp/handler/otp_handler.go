package handler

import (
	"net/http"

	"bell-backend/internal/apps/otp/models"
	"bell-backend/internal/apps/otp/service"
	"bell-backend/internal/common/response"

	"github.com/gin-gonic/gin"
)

// OTPHandler handles HTTP endpoints for issuing and verifying codes
type OTPHandler struct {
	service service.OTPService
}

// NewOTPHandler creates a new instance of OTPHandler
func NewOTPHandler(service service.OTPService) *OTPHandler {
	return &OTPHandler{service: service}
}

// SendOTP handles POST /api/v1/otp/send
func (h *OTPHandler) SendOTP(c *gin.Context) {
	var req models.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Issue(c.Request.Context(), req.Destination, req.Channel)
	if err != nil {
		response.Internal(c, err)
		return
	}

	if res.Outcome != models.IssueIssued {
		if res.Outcome == models.IssueRateLimited {
			response.SetRetryAfter(c, res.RetryAfter)
		}
		response.Error(c, res.Outcome.HTTPStatus(), res.Outcome.Message())
		return
	}

	response.Success(c, http.StatusOK, models.SendOTPResponse{
		Destination: res.Destination,
		Channel:     res.Channel,
		ExpiresAt:   res.ExpiresAt,
	})
}

// VerifyOTP handles POST /api/v1/otp/verify
func (h *OTPHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Verify(c.Request.Context(), req.Destination, req.Code)
	if err != nil {
		response.Internal(c, err)
		return
	}
	if !res.Verified() {
		WriteVerifyFailure(c, res)
		return
	}

	response.Success(c, http.StatusOK, models.VerifyOTPResponse{
		Destination: res.Destination,
		Channel:     res.Channel,
	})
}

// WriteVerifyFailure answers a failed verification. Only a mismatch reports the
// remaining attempts.
func WriteVerifyFailure(c *gin.Context, res *models.VerifyResult) {
	status := res.Outcome.HTTPStatus()
	if res.Outcome == models.VerifyMismatch {
		response.ErrorWithAttempts(c, status, res.Outcome.Message(), res.AttemptsRemaining)
		return
	}
	response.Error(c, status, res.Outcome.Message())
}
