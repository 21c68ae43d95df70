package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	StaffHandler       *handlers.StaffHandler
	BookingHandler     *handlers.BookingHandler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	StaffAPIKey        string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(httpmiddleware.Session)

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.StaffHandler != nil {
		r.Route("/staff", func(staff chi.Router) {
			staff.Use(requireStaffKey(cfg.StaffAPIKey))
			cfg.StaffHandler.Routes(staff)
		})
	}

	if cfg.BookingHandler != nil {
		r.Route("/booking", func(b chi.Router) {
			if cfg.RateLimiter != nil {
				b.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			cfg.BookingHandler.Routes(b)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
