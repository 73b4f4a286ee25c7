package service

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"bell-backend/internal/apps/otp/models"

	"github.com/oklog/ulid/v2"
)

// ErrSMTPHostRequired is returned when the SMTP host or sender is missing
var ErrSMTPHostRequired = errors.New("smtp host, port and from are required")

// SMTPConfig configures the email gateway
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// smtpProvider mails codes through an SMTP relay
type smtpProvider struct {
	addr     string
	from     string
	appName  string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPProvider creates an email OTP provider
func NewSMTPProvider(cfg SMTPConfig) (OTPProvider, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, ErrSMTPHostRequired
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	appName := cfg.AppName
	if appName == "" {
		appName = "Bell24h"
	}

	return &smtpProvider{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		appName:  appName,
		auth:     auth,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *smtpProvider) SendOTP(ctx context.Context, msg Message) (Receipt, error) {
	if msg.Channel != models.ChannelEmail {
		return Receipt{}, fmt.Errorf("%w: smtp only delivers email, got %s", ErrNoProvider, msg.Channel)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	id := ulid.Make().String()
	raw := s.compose(id, msg)

	// net/smtp takes no context, so the send races the deadline
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{msg.Destination}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Receipt{}, fmt.Errorf("failed to send OTP email: %w", err)
		}
		return Receipt{MessageID: id, Provider: "smtp"}, nil
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

func (s *smtpProvider) compose(id string, msg Message) []byte {
	minutes := int(msg.TTL.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", msg.Destination),
		fmt.Sprintf("Subject: Your %s verification code", s.appName),
		fmt.Sprintf("Message-ID: <%s@%s>", id, strings.ToLower(s.appName)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	body := fmt.Sprintf(
		"Your %s verification code is %s.\r\nIt expires in %d minute(s). Do not share it with anyone.\r\n",
		s.appName, msg.Code, minutes,
	)
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}
