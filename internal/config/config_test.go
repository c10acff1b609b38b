package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSecrets(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing stripe secret key",
			env: map[string]string{
				"STRIPE_WEBHOOK_SECRET": "whsec_x",
				"MEMBERSHIP_API_KEY":    "ms_x",
				"MAIL_API_KEY":          "mail_x",
			},
		},
		{
			name: "missing webhook secret",
			env: map[string]string{
				"STRIPE_SECRET_KEY":  "sk_x",
				"MEMBERSHIP_API_KEY": "ms_x",
				"MAIL_API_KEY":       "mail_x",
			},
		},
		{
			name: "missing membership api key",
			env: map[string]string{
				"STRIPE_SECRET_KEY":     "sk_x",
				"STRIPE_WEBHOOK_SECRET": "whsec_x",
				"MAIL_API_KEY":          "mail_x",
			},
		},
		{
			name: "missing mail api key",
			env: map[string]string{
				"STRIPE_SECRET_KEY":     "sk_x",
				"STRIPE_WEBHOOK_SECRET": "whsec_x",
				"MEMBERSHIP_API_KEY":    "ms_x",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadComplete(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("MEMBERSHIP_API_KEY", "ms_x")
	t.Setenv("MAIL_API_KEY", "mail_x")
	t.Setenv("PORT", "9090")
	t.Setenv("FULFILLMENT_BASE_DELAY", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Fulfillment.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms base delay, got %s", cfg.Fulfillment.BaseDelay)
	}
	if cfg.Fulfillment.MaxAttempts != 5 {
		t.Errorf("expected default 5 attempts, got %d", cfg.Fulfillment.MaxAttempts)
	}
	if cfg.Mail.DefaultLanguage != "en" {
		t.Errorf("expected default language en, got %q", cfg.Mail.DefaultLanguage)
	}
}

func TestLoadDevFallsBack(t *testing.T) {
	cfg := LoadDev()
	if cfg.StripeSecretKey == "" {
		t.Error("expected dev fallback stripe key")
	}
	if cfg.Membership.APIKey == "" {
		t.Error("expected dev fallback membership key")
	}
}
