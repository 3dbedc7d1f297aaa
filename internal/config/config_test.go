package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_LockoutDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.Window != 30*time.Minute {
		t.Errorf("Lockout.Window: got %v, want %v", cfg.Lockout.Window, 30*time.Minute)
	}
	if cfg.Lockout.FreeAttempts != 3 {
		t.Errorf("Lockout.FreeAttempts: got %d, want 3", cfg.Lockout.FreeAttempts)
	}

	wantSchedule := []time.Duration{60 * time.Second, 180 * time.Second, 600 * time.Second, 1800 * time.Second}
	if len(cfg.Lockout.Schedule) != len(wantSchedule) {
		t.Fatalf("Lockout.Schedule length: got %d, want %d", len(cfg.Lockout.Schedule), len(wantSchedule))
	}
	for i, want := range wantSchedule {
		if cfg.Lockout.Schedule[i] != want {
			t.Errorf("Lockout.Schedule[%d]: got %v, want %v", i, cfg.Lockout.Schedule[i], want)
		}
	}
}

func TestLoad_OTPDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"RateLimitWindow", cfg.OTP.RateLimitWindow, 1 * time.Hour},
		{"TTL", cfg.OTP.TTL, 10 * time.Minute},
		{"PasswordResetTTL", cfg.OTP.PasswordResetTTL, 5 * time.Minute},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.OTP.RateLimitMax != 3 {
		t.Errorf("RateLimitMax: got %d, want 3", cfg.OTP.RateLimitMax)
	}
}

func TestLoad_TokenExpiryDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.AccessTokenExpiry != 15*time.Minute {
		t.Errorf("AccessTokenExpiry: got %v, want 15m", cfg.Auth.AccessTokenExpiry)
	}
	if cfg.Auth.RefreshTokenExpiry != 7*24*time.Hour {
		t.Errorf("RefreshTokenExpiry: got %v, want 168h", cfg.Auth.RefreshTokenExpiry)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing JWT_SECRET")
	}
}

func TestLoad_WeakJWTSecretInProduction(t *testing.T) {
	os.Setenv("JWT_SECRET", "short")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for weak JWT_SECRET in production")
	}
}

func TestLoad_CustomLockoutValues(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("LOCKOUT_WINDOW", "15m")
	os.Setenv("LOCKOUT_FREE_ATTEMPTS", "5")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.Window != 15*time.Minute {
		t.Errorf("Lockout.Window: got %v, want 15m", cfg.Lockout.Window)
	}
	if cfg.Lockout.FreeAttempts != 5 {
		t.Errorf("Lockout.FreeAttempts: got %d, want 5", cfg.Lockout.FreeAttempts)
	}
}
