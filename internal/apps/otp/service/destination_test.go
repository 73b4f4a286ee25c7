package service

import (
	"errors"
	"testing"

	"bell-backend/internal/apps/otp/models"
)

func TestNormalizeDestination(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		channel     models.Channel
		want        string
		wantChannel models.Channel
		wantErr     bool
	}{
		{"phone", "9876543210", "", "9876543210", models.ChannelSMS, false},
		{"phone with spaces", " 98765 43210\t", "", "9876543210", models.ChannelSMS, false},
		{"phone leading zero", "0123456789", models.ChannelSMS, "0123456789", models.ChannelSMS, false},
		{"email", "alice@example.com", "", "alice@example.com", models.ChannelEmail, false},
		{"email normalized", "  Alice@Example.COM ", "", "alice@example.com", models.ChannelEmail, false},
		{"email explicit channel", "bob@mail.example.org", models.ChannelEmail, "bob@mail.example.org", models.ChannelEmail, false},
		{"letters", "abc", "", "", models.ChannelSMS, true},
		{"nine digits", "987654321", "", "", models.ChannelSMS, true},
		{"dashes", "98765-43210", "", "", models.ChannelSMS, true},
		{"plus prefix", "+9876543210", "", "", models.ChannelSMS, true},
		{"email no tld", "alice@example", "", "", models.ChannelEmail, true},
		{"email missing local", "@example.com", "", "", models.ChannelEmail, true},
		{"email forced to sms", "alice@example.com", models.ChannelSMS, "", models.ChannelSMS, true},
		{"unknown channel", "9876543210", "whatsapp", "", "whatsapp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ch, err := NormalizeDestination(tt.destination, tt.channel)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDestination) {
					t.Fatalf("expected ErrInvalidDestination, got %v (%q)", err, got)
				}
				if ch != tt.wantChannel {
					t.Errorf("channel = %q, want %q", ch, tt.wantChannel)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || ch != tt.wantChannel {
				t.Errorf("got %q/%q, want %q/%q", got, ch, tt.want, tt.wantChannel)
			}
		})
	}
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"042917", true},
		{"000000", true},
		{"999999", true},
		{"12a45", false},
		{"12a456", false},
		{"12345", false},
		{"1234567", false},
		{"", false},
		{" 12345", false},
		{"+12345", false},
	}

	for _, tt := range tests {
		if got := ValidCode(tt.code); got != tt.want {
			t.Errorf("ValidCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 2000; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("generated code %q is not six digits", code)
		}
		seen[code] = struct{}{}
	}
	// 2000 draws from a million values collide only a handful of times
	if len(seen) < 1900 {
		t.Fatalf("only %d distinct codes in 2000 draws", len(seen))
	}
}

func TestInferChannel(t *testing.T) {
	if got := InferChannel("a@b.co"); got != models.ChannelEmail {
		t.Errorf("InferChannel(email) = %q", got)
	}
	if got := InferChannel("9876543210"); got != models.ChannelSMS {
		t.Errorf("InferChannel(phone) = %q", got)
	}
}
