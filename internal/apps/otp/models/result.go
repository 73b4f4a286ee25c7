package models

import (
	"net/http"
	"time"
)

// IssueOutcome is the typed result of an issue request
type IssueOutcome string

const (
	IssueIssued             IssueOutcome = "issued"
	IssueInvalidDestination IssueOutcome = "invalid_destination"
	IssueRateLimited        IssueOutcome = "rate_limited"
	IssueDispatchFailed     IssueOutcome = "dispatch_failed"
)

// HTTPStatus maps the outcome to the status returned by the API
func (o IssueOutcome) HTTPStatus() int {
	switch o {
	case IssueIssued:
		return http.StatusOK
	case IssueInvalidDestination:
		return http.StatusBadRequest
	case IssueRateLimited:
		return http.StatusTooManyRequests
	case IssueDispatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user facing explanation of the outcome
func (o IssueOutcome) Message() string {
	switch o {
	case IssueIssued:
		return "OTP sent successfully"
	case IssueInvalidDestination:
		return "Invalid phone number or email address"
	case IssueRateLimited:
		return "Too many OTP requests, please try again later"
	case IssueDispatchFailed:
		return "Failed to deliver OTP, please try again"
	default:
		return "Internal server error"
	}
}

// IssueResult describes what happened to an issue request
type IssueResult struct {
	Outcome     IssueOutcome
	Destination string
	Channel     Channel
	ExpiresAt   time.Time
	MessageID   string
	RetryAfter  time.Duration
}

// VerifyOutcome is the typed result of a verification request
type VerifyOutcome string

const (
	VerifyVerified         VerifyOutcome = "verified"
	VerifyInvalidCode      VerifyOutcome = "invalid_code"
	VerifyNotFound         VerifyOutcome = "not_found"
	VerifyMismatch         VerifyOutcome = "mismatch"
	VerifyAttemptsExceeded VerifyOutcome = "attempts_exceeded"
)

// HTTPStatus maps the outcome to the status returned by the API
func (o VerifyOutcome) HTTPStatus() int {
	switch o {
	case VerifyVerified:
		return http.StatusOK
	case VerifyInvalidCode, VerifyMismatch:
		return http.StatusBadRequest
	case VerifyNotFound:
		return http.StatusNotFound
	case VerifyAttemptsExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user facing explanation of the outcome.
// Expired and never-issued codes share one message.
func (o VerifyOutcome) Message() string {
	switch o {
	case VerifyVerified:
		return "OTP verified successfully"
	case VerifyInvalidCode:
		return "OTP must be a 6-digit number"
	case VerifyNotFound:
		return "OTP not found or expired, please request a new one"
	case VerifyMismatch:
		return "Invalid OTP"
	case VerifyAttemptsExceeded:
		return "Too many failed attempts, please request a new OTP"
	default:
		return "Internal server error"
	}
}

// VerifyResult describes what happened to a verification request
type VerifyResult struct {
	Outcome           VerifyOutcome
	Destination       string
	Channel           Channel
	AttemptsRemaining int
}

// Verified reports whether the code was accepted
func (r *VerifyResult) Verified() bool {
	return r.Outcome == VerifyVerified
}
