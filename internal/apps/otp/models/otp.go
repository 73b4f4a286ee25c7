package models

import (
	"time"

	"github.com/google/uuid"
)

// CodeLength is the number of decimal digits in every issued code
const CodeLength = 6

// Channel identifies how a code reaches its destination
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// String returns the channel name
func (c Channel) String() string {
	return string(c)
}

// IsValid reports whether c is a known channel
func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// OTPRecord is the single live one-time code for a destination.
// Only a keyed digest of the code is stored.
type OTPRecord struct {
	Destination string    `gorm:"primaryKey;size:255" json:"destination"`
	ID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"id"`
	Channel     Channel   `gorm:"size:10;not null" json:"channel"`
	CodeDigest  string    `gorm:"size:64;not null" json:"-"`
	Attempts    int       `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int       `gorm:"not null" json:"max_attempts"`
	IssuedAt    time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName sets the table name to 'otp_records'
func (OTPRecord) TableName() string { return "otp_records" }

// IsExpired reports whether the record is past its expiry at now.
// A code is still valid at exactly ExpiresAt.
func (r *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AttemptsRemaining is the number of failed verifications the record can still absorb
func (r *OTPRecord) AttemptsRemaining() int {
	if remaining := r.MaxAttempts - r.Attempts; remaining > 0 {
		return remaining
	}
	return 0
}
