package service

import (
	"errors"
	"fmt"
	"time"

	"bell-backend/pkg/clock"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MinSecretLength is the shortest HS256 key accepted
	MinSecretLength = 32

	tokenIssuer = "bell-backend"
)

var (
	ErrSigningKeyTooShort = errors.New("JWT secret must be at least 32 bytes")
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the session token claims. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel,omitempty"`
}

// TokenService issues and checks session tokens
type TokenService interface {
	Generate(userID uuid.UUID, channel string) (string, time.Time, error)
	ParseUserID(token string) (uuid.UUID, error)
}

type hs256TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clocker
}

// NewTokenService creates an HS256 TokenService
func NewTokenService(secret string, ttl time.Duration, clk clock.Clocker) (TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSigningKeyTooShort
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.New()
	}
	return &hs256TokenService{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

func (s *hs256TokenService) Generate(userID uuid.UUID, channel string) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Channel: channel,
	}).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *hs256TokenService) ParseUserID(tokenStr string) (uuid.UUID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithIssuer(tokenIssuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrTokenExpired
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}
