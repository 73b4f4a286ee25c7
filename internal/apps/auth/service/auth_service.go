package service

import (
	"context"
	"fmt"

	"bell-backend/internal/apps/auth/models"
	otpmodels "bell-backend/internal/apps/otp/models"
	otpservice "bell-backend/internal/apps/otp/service"
	userservice "bell-backend/internal/apps/user/service"
	"bell-backend/internal/common/logger"
	"bell-backend/pkg/clock"

	"github.com/rs/zerolog"
)

// LoginResult is either a session (Verify.Verified()) or the verification failure
type LoginResult struct {
	Verify  *otpmodels.VerifyResult
	Session *models.OTPLoginResponse
}

// AuthService logs users in with one-time codes
type AuthService interface {
	LoginWithOTP(ctx context.Context, destination, code string) (*LoginResult, error)
}

type authService struct {
	otp    otpservice.OTPService
	users  userservice.UserService
	tokens TokenService
	clock  clock.Clocker
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(otp otpservice.OTPService, users userservice.UserService, tokens TokenService, clk clock.Clocker) AuthService {
	if clk == nil {
		clk = clock.New()
	}
	return &authService{otp: otp, users: users, tokens: tokens, clock: clk}
}

// LoginWithOTP consumes the code, then finds or creates the user that owns the destination
func (s *authService) LoginWithOTP(ctx context.Context, destination, code string) (*LoginResult, error) {
	res, err := s.otp.Verify(ctx, destination, code)
	if err != nil {
		return nil, err
	}
	if !res.Verified() {
		return &LoginResult{Verify: res}, nil
	}

	find := s.users.FindOrCreateByPhone
	if res.Channel == otpmodels.ChannelEmail {
		find = s.users.FindOrCreateByEmail
	}
	user, err := find(ctx, res.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if err := s.users.RecordLogin(ctx, user, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	token, expiresAt, err := s.tokens.Generate(user.ID, res.Channel.String())
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("destination", logger.MaskDestination(res.Destination)).
		Msg("user logged in with OTP")

	return &LoginResult{
		Verify: res,
		Session: &models.OTPLoginResponse{
			Token:     token,
			ExpiresAt: expiresAt,
			User:      user.ToResponse(),
		},
	}, nil
}
