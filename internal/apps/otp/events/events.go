// Package events publishes OTP lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/google/uuid"
)

// Type names a lifecycle event
type Type string

const (
	TypeIssued           Type = "otp.issued"
	TypeVerified         Type = "otp.verified"
	TypeAttemptsExceeded Type = "otp.attempts_exceeded"
	TypeDispatchFailed   Type = "otp.dispatch_failed"
)

// Event describes a change to the OTP for one destination. It never carries the code.
type Event struct {
	Type        Type           `json:"type"`
	Destination string         `json:"destination"`
	Channel     models.Channel `json:"channel"`
	IssueID     uuid.UUID      `json:"issue_id"`
	Attempts    int            `json:"attempts,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type nopPublisher struct{}

// NewNopPublisher returns a Publisher that drops every event
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func (nopPublisher) Close() error { return nil }
