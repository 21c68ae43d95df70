package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	"github.com/wolfman30/clinic-scheduler/internal/dashboard"
	"github.com/wolfman30/clinic-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type stubClinic struct{}

func (stubClinic) ListAppointments(context.Context) ([]appointments.Record, error) {
	return nil, nil
}

func (stubClinic) ListDoctors(context.Context) ([]clinicapi.Doctor, error) {
	return []clinicapi.Doctor{{ID: 1, FullName: "Dr. Ada", Department: "General"}}, nil
}

func (stubClinic) ListPatients(context.Context) ([]clinicapi.Patient, error) {
	return nil, nil
}

func (stubClinic) UpdateStatus(context.Context, appointments.StatusUpdate) error {
	return nil
}

func (stubClinic) BookForPatient(context.Context, clinicapi.StaffBookingRequest) (*clinicapi.BookingResult, error) {
	return &clinicapi.BookingResult{Message: "ok"}, nil
}

func (stubClinic) BookLabForPatient(context.Context, clinicapi.StaffLabRequest) (*clinicapi.BookingResult, error) {
	return &clinicapi.BookingResult{ID: 1, Message: "ok"}, nil
}

func (stubClinic) Slots(context.Context, int64, string) ([]string, error) {
	return []string{"09:00"}, nil
}

func (stubClinic) Book(context.Context, clinicapi.BookingRequest) (*clinicapi.BookingResult, error) {
	return &clinicapi.BookingResult{Message: "ok"}, nil
}

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	logger := logging.Discard()
	clinic := stubClinic{}
	feed := dashboard.NewFeed(clinic, dashboard.NewMemoryCache(), time.Minute, nil, logger)
	svc := dashboard.NewService(clinic, feed, dashboard.Options{Grid: calendar.DefaultGridConfig()}, logger)

	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)

	cfg := &Config{
		Logger:       logger,
		StaffHandler: handlers.NewStaffHandler(svc, time.UTC, logger),
		BookingHandler: handlers.NewBookingHandler(handlers.BookingConfig{
			Backend: func(clinicapi.Session) booking.Backend { return clinic },
			Gauge:   m,
		}, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	if rr := serve(router, http.MethodPost, "/booking", map[string]string{"X-Patient-ID": "4"}); rr.Code != http.StatusCreated {
		t.Fatalf("expected wizard to open, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := serve(router, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clinic_booking_active_sessions 1") {
		t.Fatalf("expected active wizard gauge in metrics output, got:\n%s", rr.Body.String())
	}
}

func TestRouterStaffRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/staff/calendar?unit=month", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterStaffKeyRequired(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.StaffAPIKey = "front-desk"
	})

	if rr := serve(router, http.MethodGet, "/staff/overview", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d without key, got %d", http.StatusUnauthorized, rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/staff/overview", map[string]string{staffKeyHeader: "wrong"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d with wrong key, got %d", http.StatusUnauthorized, rr.Code)
	}
	if rr := serve(router, http.MethodGet, "/staff/overview", map[string]string{staffKeyHeader: "front-desk"}); rr.Code != http.StatusOK {
		t.Fatalf("expected %d with key, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	// Health stays public.
	if rr := serve(router, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected health to stay public, got %d", rr.Code)
	}
}

func TestRouterBookingNeedsPatient(t *testing.T) {
	router := newTestRouter(t, nil)

	if rr := serve(router, http.MethodPost, "/booking", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected %d without patient, got %d", http.StatusUnauthorized, rr.Code)
	}
	if rr := serve(router, http.MethodPost, "/booking", map[string]string{"X-Patient-ID": "nope"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d for malformed patient id, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRouterBookingRateLimited(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.RateLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	})
	patient := map[string]string{"X-Patient-ID": "9"}

	if rr := serve(router, http.MethodPost, "/booking", patient); rr.Code != http.StatusCreated {
		t.Fatalf("expected first request through, got %d", rr.Code)
	}
	rr := serve(router, http.MethodPost, "/booking", patient)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected %d, got %d", http.StatusTooManyRequests, rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	// Another patient has its own bucket.
	if rr := serve(router, http.MethodPost, "/booking", map[string]string{"X-Patient-ID": "10"}); rr.Code != http.StatusCreated {
		t.Fatalf("expected other patient through, got %d", rr.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.CORSAllowedOrigins = []string{"https://clinic.example"}
	})

	rr := serve(router, http.MethodOptions, "/booking", map[string]string{
		"Origin":                        "https://clinic.example",
		"Access-Control-Request-Method": "POST",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected preflight %d, got %d", http.StatusNoContent, rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://clinic.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
