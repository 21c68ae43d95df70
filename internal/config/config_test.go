package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "BACKEND_BASE_URL", "CALENDAR_START_HOUR", "CALENDAR_END_HOUR", "PUSH_SOURCE", "FEE_ONLINE_CENTS", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "STAFF_API_KEY"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CalendarStartHour != 8 || cfg.CalendarEndHour != 18 {
		t.Fatalf("unexpected grid hours %d-%d", cfg.CalendarStartHour, cfg.CalendarEndHour)
	}
	if cfg.FeeOnlineCents != 2500 || cfg.FeeClinicCents != 4000 {
		t.Fatalf("unexpected fees %d/%d", cfg.FeeOnlineCents, cfg.FeeClinicCents)
	}
	if cfg.PushSource != PushSourceNone {
		t.Fatalf("expected push disabled by default, got %s", cfg.PushSource)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 20 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.StaffAPIKey != "" {
		t.Fatalf("expected staff routes open by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_BASE_URL", "http://api.clinic.test/")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("CLINIC_TZ", "Asia/Kolkata")
	t.Setenv("CALENDAR_HOUR_HEIGHT", "60.5")
	t.Setenv("PUSH_SOURCE", " Redis ")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("WIZARD_SESSION_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,,")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.BackendBaseURL != "http://api.clinic.test" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.BackendBaseURL)
	}
	if cfg.BackendTimeout != 3*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.BackendTimeout)
	}
	if cfg.CalendarHourHeight != 60.5 {
		t.Fatalf("expected hour height override, got %v", cfg.CalendarHourHeight)
	}
	if cfg.PushSource != PushSourceRedis {
		t.Fatalf("expected redis push source, got %q", cfg.PushSource)
	}
	if cfg.WizardSessionTTL != 5*time.Minute {
		t.Fatalf("expected session ttl override, got %s", cfg.WizardSessionTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overrides should validate: %v", err)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CALENDAR_START_HOUR", "eight")
	t.Setenv("BACKEND_TIMEOUT", "soon")
	cfg := Load()
	if cfg.CalendarStartHour != 8 {
		t.Fatalf("expected fallback start hour, got %d", cfg.CalendarStartHour)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.BackendTimeout)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := Load()
	cfg.CalendarStartHour = 19
	cfg.CalendarEndHour = 9
	cfg.CalendarHourHeight = 0
	cfg.ClinicTimezone = "Mars/Olympus"
	cfg.PushSource = PushSourceWebSocket
	cfg.PushWebSocketURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"CALENDAR_END_HOUR", "CALENDAR_HOUR_HEIGHT", "CLINIC_TZ", "PUSH_WS_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %v", want, err)
		}
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC fallback for bad timezone")
	}
}

func TestValidateUnknownPushSource(t *testing.T) {
	cfg := Load()
	cfg.PushSource = "carrier-pigeon"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "PUSH_SOURCE") {
		t.Fatalf("expected unknown push source error, got %v", err)
	}
}
