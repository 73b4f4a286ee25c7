package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bell-backend/internal/apps/otp/models"
	"bell-backend/internal/common/logger"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ErrNoProvider is returned when no provider is registered for a channel
var ErrNoProvider = errors.New("no OTP provider for channel")

// Message is a code ready to be delivered
type Message struct {
	Channel     models.Channel
	Destination string
	Code        string
	TTL         time.Duration
}

// Receipt identifies an accepted delivery
type Receipt struct {
	MessageID string
	Provider  string
}

// OTPProvider delivers codes to a destination
type OTPProvider interface {
	SendOTP(ctx context.Context, msg Message) (Receipt, error)
}

// noOpProvider skips delivery (for local environment)
type noOpProvider struct {
	log     zerolog.Logger
	logCode bool
}

func (n *noOpProvider) SendOTP(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	id := ulid.Make().String()
	evt := n.log.Info().
		Str("provider", "noop").
		Str("channel", msg.Channel.String()).
		Str("destination", logger.MaskDestination(msg.Destination)).
		Str("message_id", id)
	if n.logCode {
		evt = evt.Str("code", msg.Code)
	}
	evt.Msg("skipping OTP delivery")

	return Receipt{MessageID: id, Provider: "noop"}, nil
}

// NewNoOpProvider creates a provider that only logs. The code itself is logged
// when logCode is set, which main only allows in the local environment.
func NewNoOpProvider(log zerolog.Logger, logCode bool) OTPProvider {
	return &noOpProvider{log: log, logCode: logCode}
}

// channelRouter picks the provider registered for the message channel
type channelRouter struct {
	providers map[models.Channel]OTPProvider
}

// NewChannelRouter creates a provider that delegates by channel
func NewChannelRouter(providers map[models.Channel]OTPProvider) OTPProvider {
	return &channelRouter{providers: providers}
}

func (r *channelRouter) SendOTP(ctx context.Context, msg Message) (Receipt, error) {
	p, ok := r.providers[msg.Channel]
	if !ok || p == nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNoProvider, msg.Channel)
	}
	return p.SendOTP(ctx, msg)
}
