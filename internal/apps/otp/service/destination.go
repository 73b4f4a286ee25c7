package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"bell-backend/internal/apps/otp/models"

	"github.com/go-playground/validator/v10"
)

// maxEmailLength matches the destination column width
const maxEmailLength = 255

var (
	// ErrInvalidDestination is returned for destinations no code can be sent to
	ErrInvalidDestination = errors.New("invalid destination")

	validate = validator.New(validator.WithRequiredStructEnabled())

	codeSpace = big.NewInt(1_000_000)
)

// InferChannel picks email for anything containing '@' and sms otherwise
func InferChannel(destination string) models.Channel {
	if strings.Contains(destination, "@") {
		return models.ChannelEmail
	}
	return models.ChannelSMS
}

// NormalizeDestination canonicalizes destination for channel and validates it.
// An empty channel is inferred from the destination.
func NormalizeDestination(destination string, channel models.Channel) (string, models.Channel, error) {
	if channel == "" {
		channel = InferChannel(destination)
	}

	switch channel {
	case models.ChannelSMS:
		phone := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, destination)
		if err := validate.Var(phone, "len=10,number"); err != nil {
			return "", channel, fmt.Errorf("%w: phone must be 10 digits", ErrInvalidDestination)
		}
		return phone, channel, nil

	case models.ChannelEmail:
		email := strings.ToLower(strings.TrimSpace(destination))
		if len(email) > maxEmailLength {
			return "", channel, fmt.Errorf("%w: email too long", ErrInvalidDestination)
		}
		if err := validate.Var(email, "required,email"); err != nil {
			return "", channel, fmt.Errorf("%w: malformed email", ErrInvalidDestination)
		}
		if domain := email[strings.LastIndex(email, "@")+1:]; !strings.Contains(domain, ".") {
			return "", channel, fmt.Errorf("%w: email domain has no dot", ErrInvalidDestination)
		}
		return email, channel, nil

	default:
		return "", channel, fmt.Errorf("%w: unknown channel %q", ErrInvalidDestination, channel)
	}
}

// ValidCode reports whether code is exactly six ASCII digits
func ValidCode(code string) bool {
	return validate.Var(code, fmt.Sprintf("len=%d,number", models.CodeLength)) == nil
}

// GenerateCode returns a uniformly random zero-padded six digit code
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%0*d", models.CodeLength, n.Int64()), nil
}
