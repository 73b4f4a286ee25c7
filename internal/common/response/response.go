// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Body is the envelope every endpoint answers with
type Body struct {
	Success           bool   `json:"success"`
	Data              any    `json:"data,omitempty"`
	Error             string `json:"error,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// Success writes {"success":true,"data":...}
func Success(c *gin.Context, status int, data any) {
	c.JSON(status, Body{Success: true, Data: data})
}

// Error writes {"success":false,"error":msg}
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, Body{Success: false, Error: msg})
}

// ErrorWithAttempts writes an error that tells the caller how many tries are left
func ErrorWithAttempts(c *gin.Context, status int, msg string, remaining int) {
	c.JSON(status, Body{Success: false, Error: msg, AttemptsRemaining: &remaining})
}

// Internal logs err and answers with a generic 500 so internals never leak
func Internal(c *gin.Context, err error) {
	_ = c.Error(err)
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	Error(c, http.StatusInternalServerError, "internal server error")
}

// SetRetryAfter sets the Retry-After header in whole seconds, rounded up
func SetRetryAfter(c *gin.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	secs := int(math.Ceil(d.Seconds()))
	c.Header("Retry-After", strconv.Itoa(secs))
}
