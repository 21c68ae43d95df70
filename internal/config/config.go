package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Push sources for the new-appointment notification channel.
const (
	PushSourceNone      = "none"
	PushSourceWebSocket = "websocket"
	PushSourceRedis     = "redis"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Backend REST API (external service)
	BackendBaseURL string
	BackendTimeout time.Duration

	// Calendar grid
	ClinicTimezone     string
	CalendarStartHour  int
	CalendarEndHour    int
	CalendarHourHeight float64

	// Booking fees in cents, keyed by consultation type
	FeeOnlineCents int
	FeeClinicCents int

	// Push notifications
	PushSource         string
	PushWebSocketURL   string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	RedisEventsChannel string

	// Staff appointment list cache lifetime; zero keeps it until invalidated
	AppointmentCacheTTL time.Duration

	// Gateway wizard sessions
	WizardSessionLimit int
	WizardSessionTTL   time.Duration

	// Patient request throttling, per patient id
	RateLimitRPS   float64
	RateLimitBurst int

	// Shared key for the staff routes; empty leaves them open
	StaffAPIKey string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendBaseURL: strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8000"), "/"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),

		ClinicTimezone:     getEnv("CLINIC_TZ", "UTC"),
		CalendarStartHour:  getEnvAsInt("CALENDAR_START_HOUR", 8),
		CalendarEndHour:    getEnvAsInt("CALENDAR_END_HOUR", 18),
		CalendarHourHeight: getEnvAsFloat("CALENDAR_HOUR_HEIGHT", 80),

		FeeOnlineCents: getEnvAsInt("FEE_ONLINE_CENTS", 2500),
		FeeClinicCents: getEnvAsInt("FEE_CLINIC_CENTS", 4000),

		PushSource:         strings.ToLower(strings.TrimSpace(getEnv("PUSH_SOURCE", PushSourceNone))),
		PushWebSocketURL:   getEnv("PUSH_WS_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		RedisEventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "clinic:events"),

		AppointmentCacheTTL: getEnvAsDuration("APPOINTMENT_CACHE_TTL", 2*time.Minute),

		WizardSessionLimit: getEnvAsInt("WIZARD_SESSION_LIMIT", 1024),
		WizardSessionTTL:   getEnvAsDuration("WIZARD_SESSION_TTL", 30*time.Minute),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		StaffAPIKey: strings.TrimSpace(getEnv("STAFF_API_KEY", "")),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// Validate rejects combinations the calendar and push wiring cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.CalendarStartHour < 0 || c.CalendarStartHour > 23 {
		errs = append(errs, fmt.Errorf("config: CALENDAR_START_HOUR out of range: %d", c.CalendarStartHour))
	}
	if c.CalendarEndHour < 0 || c.CalendarEndHour > 23 {
		errs = append(errs, fmt.Errorf("config: CALENDAR_END_HOUR out of range: %d", c.CalendarEndHour))
	}
	if c.CalendarEndHour < c.CalendarStartHour {
		errs = append(errs, fmt.Errorf("config: CALENDAR_END_HOUR %d before CALENDAR_START_HOUR %d", c.CalendarEndHour, c.CalendarStartHour))
	}
	if c.CalendarHourHeight <= 0 {
		errs = append(errs, errors.New("config: CALENDAR_HOUR_HEIGHT must be positive"))
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		errs = append(errs, fmt.Errorf("config: CLINIC_TZ: %w", err))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("config: rate limit needs positive RATE_LIMIT_RPS and RATE_LIMIT_BURST, got %v/%d", c.RateLimitRPS, c.RateLimitBurst))
	}
	switch c.PushSource {
	case PushSourceNone, "":
	case PushSourceWebSocket:
		if c.PushWebSocketURL == "" {
			errs = append(errs, errors.New("config: PUSH_WS_URL required for websocket push source"))
		}
	case PushSourceRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("config: REDIS_ADDR required for redis push source"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown PUSH_SOURCE %q", c.PushSource))
	}
	return errors.Join(errs...)
}

// Location resolves the clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
