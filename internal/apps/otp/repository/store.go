package repository

import (
	"context"
	"errors"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for a destination, or the record
// was replaced by a newer issue.
var ErrNotFound = errors.New("otp record not found")

// Store keeps at most one OTP record per destination. Every method touches a single
// destination and is atomic with respect to other calls for the same destination.
type Store interface {
	// Put stores rec, replacing any record already held for rec.Destination.
	Put(ctx context.Context, rec *models.OTPRecord) error

	// Get returns the record for destination or ErrNotFound. Expiry is not checked.
	Get(ctx context.Context, destination string) (*models.OTPRecord, error)

	// Remove deletes the record for destination only if it is still the record with id.
	// It reports whether a record was deleted.
	Remove(ctx context.Context, destination string, id uuid.UUID) (bool, error)

	// IncrementAttempts adds one failed attempt to the record with id and returns the new
	// count. The record is deleted in the same step once the count reaches its MaxAttempts.
	// ErrNotFound means the record is gone or was replaced.
	IncrementAttempts(ctx context.Context, destination string, id uuid.UUID) (int, error)

	// DeleteExpired purges records whose expiry is before now and returns how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
