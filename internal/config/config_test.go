package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "PAYMENT_EXPIRY_MINUTES")
	unsetEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")
	unsetEnvWithCleanup(t, "OVERDUE_SWEEP_SCHEDULE")
	unsetEnvWithCleanup(t, "EXPIRY_SWEEP_SCHEDULE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.PaymentExpiryMinutes != 60 {
		t.Fatalf("expected default PaymentExpiryMinutes 60, got %d", cfg.PaymentExpiryMinutes)
	}
	if cfg.PaymentRateLimitPerMinute != 10 {
		t.Fatalf("expected default PaymentRateLimitPerMinute 10, got %d", cfg.PaymentRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "feepay:rate_limit" {
		t.Fatalf("expected default rate limit prefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.OverdueSweepSchedule != "0 2 * * *" {
		t.Fatalf("expected default overdue sweep schedule, got %q", cfg.OverdueSweepSchedule)
	}
	if cfg.ExpirySweepSchedule != "*/15 * * * *" {
		t.Fatalf("expected default expiry sweep schedule, got %q", cfg.ExpirySweepSchedule)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_TrimsReceiptBaseURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RECEIPT_BASE_URL", "https://receipts.example.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReceiptBaseURL != "https://receipts.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.ReceiptBaseURL)
	}
}

func TestLoadConfig_RejectsNonPositiveWindows(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_EXPIRY_MINUTES", "-5")
	setEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentExpiryMinutes != 60 {
		t.Fatalf("expected a non-positive expiry window to fall back to 60, got %d", cfg.PaymentExpiryMinutes)
	}
	if cfg.PaymentRateLimitPerMinute != 10 {
		t.Fatalf("expected a non-positive rate limit to fall back to 10, got %d", cfg.PaymentRateLimitPerMinute)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{environment: "production", want: true},
		{environment: "PRODUCTION", want: true},
		{environment: " production ", want: true},
		{environment: "development", want: false},
		{environment: "", want: false},
	}

	for _, tt := range tests {
		cfg := Config{Environment: tt.environment}
		if got := cfg.IsProduction(); got != tt.want {
			t.Fatalf("IsProduction(%q): expected %t, got %t", tt.environment, tt.want, got)
		}
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
