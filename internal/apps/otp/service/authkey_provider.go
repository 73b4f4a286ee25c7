package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"
)

const authKeyBaseURL = "https://api.authkey.io/request"

// AuthKeyConfig configures the AuthKey.io SMS gateway
type AuthKeyConfig struct {
	BaseURL     string
	APIKey      string
	TemplateID  string
	CountryCode string
	Company     string
	MaxRetries  uint64
	Client      *http.Client
}

// authKeyProvider sends OTP via AuthKey.io API
type authKeyProvider struct {
	cfg AuthKeyConfig
}

// NewAuthKeyProvider creates an AuthKey.io OTP provider
func NewAuthKeyProvider(cfg AuthKeyConfig) OTPProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = authKeyBaseURL
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "91"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &authKeyProvider{cfg: cfg}
}

type authKeyResponse struct {
	Message string `json:"Message"`
	LogID   string `json:"LogID"`
}

func (a *authKeyProvider) SendOTP(ctx context.Context, msg Message) (Receipt, error) {
	if msg.Channel != models.ChannelSMS {
		return Receipt{}, fmt.Errorf("%w: authkey only delivers sms, got %s", ErrNoProvider, msg.Channel)
	}

	params := url.Values{}
	params.Add("authkey", a.cfg.APIKey)
	params.Add("mobile", msg.Destination)
	params.Add("country_code", a.cfg.CountryCode)
	params.Add("sid", a.cfg.TemplateID)
	params.Add("company", a.cfg.Company)
	params.Add("otp", msg.Code)
	reqURL := fmt.Sprintf("%s?%s", a.cfg.BaseURL, params.Encode())

	b := retry.NewFibonacci(200 * time.Millisecond)
	b = retry.WithCappedDuration(2*time.Second, b)
	b = retry.WithMaxRetries(a.cfg.MaxRetries, b)

	var out authKeyResponse
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}

		resp, err := a.cfg.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("failed to send OTP via AuthKey: %w", err))
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("AuthKey API returned status %d: %s", resp.StatusCode, string(body)))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("AuthKey API returned status %d: %s", resp.StatusCode, string(body))
		}

		// LogID is optional
		_ = json.Unmarshal(body, &out)
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	id := out.LogID
	if id == "" {
		id = ulid.Make().String()
	}
	return Receipt{MessageID: id, Provider: "authkey"}, nil
}
